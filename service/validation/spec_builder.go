/*
 * @module service/validation/spec_builder
 * @description 从项目字典构建校验规格
 * @architecture 构建器模式 - 纯转换，可选项通过 BuilderOption 注入
 * @stateFlow 字典行 -> 过滤(text/非只读) -> 空白归一 -> 去除无校验信息行 -> 边界解析 -> 排除/重命名 -> ValidationSpec
 * @rules 边界解析失败视为字典错误；重命名表显式且带版本；重命名后字段名重复视为字典错误
 * @dependencies log/slog, regexp
 * @refs coercion.go, ruleset.go
 */

package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"redcap-outlier-service/service/models"
)

// ErrSchemaMalformed 字典结构错误
var ErrSchemaMalformed = models.ErrSchemaMalformed

const (
	// DefaultRequiredMarker REDCap 导出的必填标记
	DefaultRequiredMarker = "y"

	textFieldType      = "text"
	readonlyAnnotation = "@READONLY"
)

// RenameTable 字段/表单重命名表，用于对齐字典与数据表之间的命名差异
type RenameTable struct {
	Version string            `json:"version" yaml:"version"`
	Forms   map[string]string `json:"forms,omitempty" yaml:"forms,omitempty"`
	Fields  map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// IsEmpty 重命名表是否为空
func (t RenameTable) IsEmpty() bool {
	return len(t.Forms) == 0 && len(t.Fields) == 0
}

// ApplyToForms 按重命名表生成新的表单集合，输入不被修改
// 表单名、字段列、复选框展开列与 <form>_complete 列一并改名；未出现在表中的名称保持不变
func (t RenameTable) ApplyToForms(forms map[string]*models.Form) map[string]*models.Form {
	if t.IsEmpty() {
		return forms
	}

	renamed := make(map[string]*models.Form, len(forms))
	for name, form := range forms {
		newName := name
		if target, ok := t.Forms[name]; ok {
			newName = target
		}

		columnMap := make(map[string]string, len(form.Columns))
		columns := make([]string, 0, len(form.Columns))
		for _, column := range form.Columns {
			target := t.renameColumn(column, name, newName)
			columnMap[column] = target
			columns = append(columns, target)
		}

		out := models.NewForm(newName, columns)
		for _, row := range form.Rows {
			newRow := make(map[string]interface{}, len(row))
			for key, value := range row {
				if target, ok := columnMap[key]; ok {
					key = target
				}
				newRow[key] = value
			}
			out.Rows = append(out.Rows, newRow)
		}
		renamed[newName] = out
	}
	return renamed
}

func (t RenameTable) renameColumn(column, oldForm, newForm string) string {
	if column == oldForm+models.CompleteColumnSuffix {
		return newForm + models.CompleteColumnSuffix
	}
	if target, ok := t.Fields[column]; ok {
		return target
	}
	if field, code, ok := strings.Cut(column, models.DefaultCheckboxSplitter); ok {
		if target, ok := t.Fields[field]; ok {
			return target + models.DefaultCheckboxSplitter + code
		}
	}
	return column
}

type builderConfig struct {
	renames        RenameTable
	excludes       []*regexp.Regexp
	requiredMarker string
	now            func() time.Time
}

// BuilderOption 构建选项
type BuilderOption func(*builderConfig) error

// WithRenameTable 构建完成后应用重命名表
func WithRenameTable(table RenameTable) BuilderOption {
	return func(c *builderConfig) error {
		c.renames = table
		return nil
	}
}

// WithExcludePatterns 排除字段名匹配任一正则的字段
func WithExcludePatterns(patterns ...string) BuilderOption {
	return func(c *builderConfig) error {
		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("排除规则 %q 无效: %w", pattern, err)
			}
			c.excludes = append(c.excludes, re)
		}
		return nil
	}
}

// WithRequiredMarker 设置必填标记，比较时忽略大小写
func WithRequiredMarker(marker string) BuilderOption {
	return func(c *builderConfig) error {
		c.requiredMarker = marker
		return nil
	}
}

// WithClock 设置解析 today/now 边界时使用的时钟
func WithClock(now func() time.Time) BuilderOption {
	return func(c *builderConfig) error {
		c.now = now
		return nil
	}
}

// BuildValidationSpec 从字典构建校验规格
func BuildValidationSpec(codebook []models.FieldMetadata, opts ...BuilderOption) (*ValidationSpec, error) {
	cfg := &builderConfig{
		requiredMarker: DefaultRequiredMarker,
		now:            time.Now,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	spec := newValidationSpec()
	spec.RenameVersion = cfg.renames.Version
	owners := make(map[string]string)

	for _, meta := range codebook {
		if strings.TrimSpace(meta.FieldType) != textFieldType {
			continue
		}
		if strings.Contains(meta.FieldAnnotation, readonlyAnnotation) {
			continue
		}
		if cfg.excluded(meta.FieldName) {
			continue
		}

		rule, ok, err := cfg.deriveRule(meta)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		rule = cfg.rename(rule)
		if form, dup := owners[rule.FieldName]; dup {
			return nil, fmt.Errorf("%w: 字段 %s 同时属于表单 %s 和 %s", ErrSchemaMalformed, rule.FieldName, form, rule.FormName)
		}
		owners[rule.FieldName] = rule.FormName
		spec.add(rule)
	}

	slog.Info("校验规格构建完成",
		"fields", spec.Len(),
		"forms", len(spec.forms),
		"numeric", len(spec.NumericCols),
		"date", len(spec.DateCols),
		"required", len(spec.RequiredCols),
		"branching", len(spec.BranchingCols),
		"rename_version", spec.RenameVersion)

	return spec, nil
}

func (c *builderConfig) excluded(fieldName string) bool {
	for _, re := range c.excludes {
		if re.MatchString(fieldName) {
			return true
		}
	}
	return false
}

// deriveRule 生成字段规则，没有任何可校验信息时返回 ok=false
func (c *builderConfig) deriveRule(meta models.FieldMetadata) (FieldRule, bool, error) {
	validationType := strings.TrimSpace(meta.ValidationType)
	minRaw := strings.TrimSpace(meta.ValidationMin)
	maxRaw := strings.TrimSpace(meta.ValidationMax)
	requiredRaw := strings.TrimSpace(meta.RequiredField)
	branching := strings.TrimSpace(meta.BranchingLogic)

	if validationType == "" && minRaw == "" && maxRaw == "" && requiredRaw == "" && branching == "" {
		return FieldRule{}, false, nil
	}

	rule := FieldRule{
		FieldName:      strings.TrimSpace(meta.FieldName),
		FormName:       strings.TrimSpace(meta.FormName),
		ValidationType: validationType,
		Kind:           classifyType(validationType),
		Required:       requiredRaw != "" && strings.EqualFold(requiredRaw, c.requiredMarker),
		BranchingLogic: branching,
	}

	if rule.Kind == KindNone {
		return rule, true, nil
	}

	var err error
	if rule.Min, err = c.parseBound(rule, "min", minRaw); err != nil {
		return FieldRule{}, false, err
	}
	if rule.Max, err = c.parseBound(rule, "max", maxRaw); err != nil {
		return FieldRule{}, false, err
	}

	return rule, true, nil
}

// parseBound 按字段类别解析边界，日期边界支持 today/now
func (c *builderConfig) parseBound(rule FieldRule, name, raw string) (*Scalar, error) {
	if raw == "" {
		return nil, nil
	}

	if rule.Kind == KindDate {
		switch strings.ToLower(raw) {
		case "today":
			now := c.now()
			bound := Scalar{Kind: KindDate, Time: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}
			return &bound, nil
		case "now":
			bound := Scalar{Kind: KindDate, Time: c.now().UTC()}
			return &bound, nil
		}
	}

	bound, err := ToScalar(raw, rule.Kind, rule.ValidationType)
	if err != nil {
		return nil, fmt.Errorf("%w: 字段 %s 的 %s 边界 %q 无法解析为 %s: %v",
			ErrSchemaMalformed, rule.FieldName, name, raw, rule.Kind, err)
	}
	return &bound, nil
}

func (c *builderConfig) rename(rule FieldRule) FieldRule {
	if form, ok := c.renames.Forms[rule.FormName]; ok {
		rule.FormName = form
	}
	if field, ok := c.renames.Fields[rule.FieldName]; ok {
		rule.FieldName = field
	}
	return rule
}
