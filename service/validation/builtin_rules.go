/*
 * @module service/validation/builtin_rules
 * @description 内置自定义规则工厂：证件号校验、缺失值、跨表单编码重复、条件必填
 * @architecture 工厂模式 - 每个工厂返回一个闭包形式的 CustomRule
 * @stateFlow 工厂参数 + 表单集合 -> CustomRule -> CustomRuleResult
 * @rules 重复表单返回带实例号的键，否则只返回 record_id；分支逻辑无法求值时按适用处理
 * @dependencies github.com/spf13/cast, log/slog
 * @refs custom_rules.go, branching.go, service/checksum
 */

package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"redcap-outlier-service/service/checksum"
	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
)

// ChecksumFormat 证件号格式
type ChecksumFormat string

const (
	ChecksumCPF ChecksumFormat = "cpf"
	ChecksumCNS ChecksumFormat = "cns"
)

// 内置规则默认原因
const (
	ReasonInvalidCPF     = "CPF failed check-digit validation"
	ReasonInvalidCNS     = "CNS failed check-digit validation"
	ReasonMissingValue   = "value missing or missing-data code"
	ReasonRequiredMissed = "required field is missing"
	DefaultCodeSeparator = " - "
)

func lookupForm(forms map[string]*models.Form, formName, column string) (*models.Form, error) {
	form, ok := forms[formName]
	if !ok || form == nil {
		return nil, fmt.Errorf("表单 %s 不存在", formName)
	}
	if !form.HasColumn(column) {
		return nil, fmt.Errorf("表单 %s 缺少列 %s", formName, column)
	}
	return form, nil
}

// ChecksumRule 校验非空取值的证件号校验码
func ChecksumRule(forms map[string]*models.Form, formName, column string, format ChecksumFormat, reason string) CustomRule {
	var isValid func(string) bool
	switch format {
	case ChecksumCPF:
		isValid = checksum.IsValidCPF
		if reason == "" {
			reason = ReasonInvalidCPF
		}
	case ChecksumCNS:
		isValid = checksum.IsValidCNS
		if reason == "" {
			reason = ReasonInvalidCNS
		}
	}

	return func() (*CustomRuleResult, error) {
		if isValid == nil {
			return nil, fmt.Errorf("不支持的证件号格式: %s", format)
		}
		form, err := lookupForm(forms, formName, column)
		if err != nil {
			return nil, err
		}

		var keys []RecordKey
		seen := make(map[string]bool)
		for _, row := range form.Rows {
			value := row[column]
			if models.IsNull(value) {
				continue
			}
			if !isValid(cast.ToString(value)) {
				keys = appendKey(keys, seen, rowKey(form, row))
			}
		}

		return &CustomRuleResult{
			Form:           form,
			Column:         column,
			FormName:       formName,
			InvalidRecords: keys,
			ReasonDesc:     reason,
		}, nil
	}
}

// MissingValueRule 取值为空或为缺失数据编码的记录
func MissingValueRule(forms map[string]*models.Form, formName, column string, missingCodes []string, reason string) CustomRule {
	if reason == "" {
		reason = ReasonMissingValue
	}
	codes := make(map[string]bool, len(missingCodes))
	for _, code := range missingCodes {
		codes[strings.TrimSpace(code)] = true
	}

	return func() (*CustomRuleResult, error) {
		form, err := lookupForm(forms, formName, column)
		if err != nil {
			return nil, err
		}

		var keys []RecordKey
		seen := make(map[string]bool)
		for _, row := range form.Rows {
			value := row[column]
			if models.IsNull(value) || codes[strings.TrimSpace(cast.ToString(value))] {
				keys = appendKey(keys, seen, rowKey(form, row))
			}
		}

		return &CustomRuleResult{
			Form:           form,
			Column:         column,
			FormName:       formName,
			InvalidRecords: keys,
			ReasonDesc:     reason,
		}, nil
	}
}

// CrossFormMatch 跨表单编码比较参数
// 源列取值按 Separator 切分后取第 Part 段，与目标列取值相同的目标记录视为异常
type CrossFormMatch struct {
	SourceForm   string
	SourceColumn string
	Separator    string
	Part         int
	TargetForm   string
	TargetColumn string
	Reason       string
}

// CrossFormMatchRule 按 record_id 关联两个表单，比较源列提取的编码与目标列
func CrossFormMatchRule(forms map[string]*models.Form, match CrossFormMatch) CustomRule {
	if match.Separator == "" {
		match.Separator = DefaultCodeSeparator
	}

	return func() (*CustomRuleResult, error) {
		if match.Reason == "" {
			return nil, fmt.Errorf("跨表单比较规则缺少原因描述")
		}
		source, err := lookupForm(forms, match.SourceForm, match.SourceColumn)
		if err != nil {
			return nil, err
		}
		target, err := lookupForm(forms, match.TargetForm, match.TargetColumn)
		if err != nil {
			return nil, err
		}

		codes := make(map[string]map[string]bool)
		for _, row := range source.Rows {
			code, ok := extractCode(row[match.SourceColumn], match.Separator, match.Part)
			if !ok {
				continue
			}
			recordID := models.RecordID(row)
			if codes[recordID] == nil {
				codes[recordID] = make(map[string]bool)
			}
			codes[recordID][code] = true
		}

		var keys []RecordKey
		seen := make(map[string]bool)
		for _, row := range target.Rows {
			value := row[match.TargetColumn]
			if models.IsNull(value) {
				continue
			}
			if codes[models.RecordID(row)][strings.TrimSpace(cast.ToString(value))] {
				keys = appendKey(keys, seen, rowKey(target, row))
			}
		}

		return &CustomRuleResult{
			Form:           target,
			Column:         match.TargetColumn,
			FormName:       match.TargetForm,
			InvalidRecords: keys,
			ReasonDesc:     match.Reason,
		}, nil
	}
}

// extractCode 切分 "描述 - 编码" 形式的取值
func extractCode(value interface{}, separator string, part int) (string, bool) {
	if models.IsNull(value) {
		return "", false
	}
	parts := strings.Split(cast.ToString(value), separator)
	if part < 0 || part >= len(parts) {
		return "", false
	}
	code := strings.TrimSpace(parts[part])
	return code, code != ""
}

// RequiredFieldRule 必填字段为空且分支逻辑成立（或无法求值）的记录
func RequiredFieldRule(forms map[string]*models.Form, rule FieldRule, evaluator *BranchingEvaluator, reason string) CustomRule {
	if reason == "" {
		reason = ReasonRequiredMissed
	}

	return func() (*CustomRuleResult, error) {
		form, err := lookupForm(forms, rule.FormName, rule.FieldName)
		if err != nil {
			return nil, err
		}

		var keys []RecordKey
		seen := make(map[string]bool)
		for _, row := range form.Rows {
			if !models.IsNull(row[rule.FieldName]) {
				continue
			}
			if rule.HasBranching() && evaluator != nil {
				applicable, err := evaluator.Evaluate(rule.BranchingLogic, RowValues(row))
				if err != nil {
					slog.Debug("分支逻辑无法求值，按适用处理", "field_name", rule.FieldName, "error", err)
					applicable = true
				}
				if !applicable {
					continue
				}
			}
			keys = appendKey(keys, seen, rowKey(form, row))
		}

		return &CustomRuleResult{
			Form:           form,
			Column:         rule.FieldName,
			FormName:       rule.FormName,
			InvalidRecords: keys,
			ReasonDesc:     reason,
		}, nil
	}
}

// RegisterRequiredFields 为规格中每个必填字段注册一条 required:<字段名> 规则
// 数据中缺少对应表单或列的字段不注册
func RegisterRequiredFields(registry *Registry, spec *ValidationSpec, forms map[string]*models.Form, evaluator *BranchingEvaluator, reason string) error {
	for _, rule := range spec.Fields() {
		if !rule.Required {
			continue
		}
		if _, err := lookupForm(forms, rule.FormName, rule.FieldName); err != nil {
			slog.Warn("必填字段不在数据中，跳过", "form_name", rule.FormName, "field_name", rule.FieldName)
			continue
		}
		if err := registry.Register("required:"+rule.FieldName, RequiredFieldRule(forms, rule, evaluator, reason)); err != nil {
			return err
		}
	}
	return nil
}
