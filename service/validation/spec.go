/*
 * @module service/validation/spec
 * @description 校验规格：按表单分组的字段规则与四个分派集合
 * @architecture 值对象 - 构建后只读
 * @stateFlow FieldMetadata -> 构建器 -> ValidationSpec -> 规则执行器/自定义规则
 * @rules 每个字段只属于一个表单；字段顺序与字典顺序一致
 * @dependencies sort
 * @refs spec_builder.go, rule_executor.go
 */

package validation

import (
	"sort"
	"strings"
)

// FieldRule 单个字段的校验规则
type FieldRule struct {
	FieldName      string   `json:"field_name"`
	FormName       string   `json:"form_name"`
	ValidationType string   `json:"validation_type,omitempty"`
	Kind           DataKind `json:"-"`
	Min            *Scalar  `json:"-"`
	Max            *Scalar  `json:"-"`
	Required       bool     `json:"required"`
	BranchingLogic string   `json:"branching_logic,omitempty"`
}

// HasBounds 是否声明了至少一个边界
func (r FieldRule) HasBounds() bool {
	return r.Min != nil || r.Max != nil
}

// HasBranching 是否带有分支逻辑
func (r FieldRule) HasBranching() bool {
	return strings.TrimSpace(r.BranchingLogic) != ""
}

// FieldSet 字段名集合
type FieldSet map[string]struct{}

// Add 添加字段
func (s FieldSet) Add(name string) {
	s[name] = struct{}{}
}

// Has 是否包含字段
func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted 返回排序后的字段名
func (s FieldSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationSpec 校验规格
type ValidationSpec struct {
	// RenameVersion 构建时使用的重命名表版本，未使用时为空
	RenameVersion string

	NumericCols   FieldSet
	DateCols      FieldSet
	RequiredCols  FieldSet
	BranchingCols FieldSet

	fields []FieldRule
	index  map[string]int
	forms  []string
}

func newValidationSpec() *ValidationSpec {
	return &ValidationSpec{
		NumericCols:   make(FieldSet),
		DateCols:      make(FieldSet),
		RequiredCols:  make(FieldSet),
		BranchingCols: make(FieldSet),
		index:         make(map[string]int),
	}
}

// add 登记字段规则并更新分派集合，调用方保证字段名唯一
func (s *ValidationSpec) add(rule FieldRule) {
	s.index[rule.FieldName] = len(s.fields)
	s.fields = append(s.fields, rule)

	known := false
	for _, form := range s.forms {
		if form == rule.FormName {
			known = true
			break
		}
	}
	if !known {
		s.forms = append(s.forms, rule.FormName)
	}

	switch rule.Kind {
	case KindNumeric:
		s.NumericCols.Add(rule.FieldName)
	case KindDate:
		s.DateCols.Add(rule.FieldName)
	}
	if rule.Required {
		s.RequiredCols.Add(rule.FieldName)
	}
	if rule.HasBranching() {
		s.BranchingCols.Add(rule.FieldName)
	}
}

// Len 字段数量
func (s *ValidationSpec) Len() int {
	return len(s.fields)
}

// Fields 按字典顺序返回全部字段规则
func (s *ValidationSpec) Fields() []FieldRule {
	out := make([]FieldRule, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field 按字段名查找规则
func (s *ValidationSpec) Field(name string) (FieldRule, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldRule{}, false
	}
	return s.fields[i], true
}

// FormNames 按字典顺序返回表单名
func (s *ValidationSpec) FormNames() []string {
	out := make([]string, len(s.forms))
	copy(out, s.forms)
	return out
}

// FieldsOf 返回某个表单的字段规则
func (s *ValidationSpec) FieldsOf(formName string) []FieldRule {
	var out []FieldRule
	for _, rule := range s.fields {
		if rule.FormName == formName {
			out = append(out, rule)
		}
	}
	return out
}
