/*
 * @module service/validation/custom_rules
 * @description 自定义规则注册表：按注册顺序执行业务规则，结果经契约检查后写入累加器
 * @architecture 注册表模式 - 显式注册，无反射发现
 * @stateFlow Register -> Run -> 契约检查 -> Accumulator.Record
 * @rules 规则名唯一；契约不满足或规则返回错误时中止整个运行；空结果不写入累加器
 * @dependencies log/slog
 * @refs accumulator.go, builtin_rules.go, ruleset.go
 */

package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"redcap-outlier-service/service/models"
)

// ErrContractViolation 自定义规则返回的结果不满足契约
var ErrContractViolation = errors.New("自定义规则结果不满足契约")

// CustomRuleResult 自定义规则的结果
type CustomRuleResult struct {
	Form           *models.Form
	Column         string
	FormName       string
	InvalidRecords []RecordKey
	ReasonDesc     string
}

// CustomRule 自定义规则函数
type CustomRule func() (*CustomRuleResult, error)

// Registry 自定义规则注册表
type Registry struct {
	names []string
	rules map[string]CustomRule
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		names: make([]string, 0),
		rules: make(map[string]CustomRule),
	}
}

// Register 注册规则，名称重复或规则为空时返回错误
func (r *Registry) Register(name string, rule CustomRule) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("规则名称不能为空")
	}
	if rule == nil {
		return fmt.Errorf("规则 %s 为空", name)
	}
	if _, exists := r.rules[name]; exists {
		return fmt.Errorf("规则 %s 已注册", name)
	}
	r.names = append(r.names, name)
	r.rules[name] = rule
	return nil
}

// Names 按注册顺序返回规则名
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len 规则数量
func (r *Registry) Len() int {
	return len(r.names)
}

// Run 按注册顺序执行全部规则
func (r *Registry) Run(acc *Accumulator) error {
	for _, name := range r.names {
		result, err := r.rules[name]()
		if err != nil {
			return fmt.Errorf("自定义规则 %s 执行失败: %w", name, err)
		}
		if err := checkContract(name, result); err != nil {
			return err
		}

		if len(result.InvalidRecords) == 0 {
			slog.Debug("自定义规则未发现异常", "rule", name)
			continue
		}

		if err := acc.Record(result.Form, result.Column, result.FormName, result.InvalidRecords, result.ReasonDesc); err != nil {
			return fmt.Errorf("自定义规则 %s 结果写入失败: %w", name, err)
		}
		slog.Info("自定义规则执行完成", "rule", name, "form_name", result.FormName,
			"field_name", result.Column, "invalid_records", len(result.InvalidRecords))
	}
	return nil
}

// checkContract 检查结果的每个字段都已填写，且记录键类型一致
func checkContract(name string, result *CustomRuleResult) error {
	if result == nil {
		return fmt.Errorf("%w: 规则 %s 未返回结果", ErrContractViolation, name)
	}

	var missing []string
	if result.Form == nil {
		missing = append(missing, "form")
	}
	if strings.TrimSpace(result.Column) == "" {
		missing = append(missing, "column")
	}
	if strings.TrimSpace(result.FormName) == "" {
		missing = append(missing, "form_name")
	}
	if strings.TrimSpace(result.ReasonDesc) == "" {
		missing = append(missing, "reason_desc")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: 规则 %s 缺少 %s", ErrContractViolation, name, strings.Join(missing, ", "))
	}

	for _, key := range result.InvalidRecords {
		if key.Kind() != result.InvalidRecords[0].Kind() {
			return fmt.Errorf("%w: 规则 %s 的记录键类型不一致", ErrContractViolation, name)
		}
	}
	return nil
}
