/*
 * @module service/validation/rule_executor
 * @description 通用规则执行器：对每个表单的数值/日期字段执行类型检查与范围检查
 * @architecture 策略执行 - 违规结果立即写入累加器
 * @stateFlow ValidationSpec + 表单 -> CheckDtype -> CheckRange -> Accumulator
 * @rules 表单缺少必需列时整体失败；空值不参与任何检查；无法转换的值只报告类型错误，不参与范围检查；边界为闭区间
 * @dependencies log/slog
 * @refs spec.go, accumulator.go, coercion.go
 */

package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"redcap-outlier-service/service/models"
)

// RunGenericChecks 按字典顺序对所有表单执行通用检查
func RunGenericChecks(spec *ValidationSpec, forms map[string]*models.Form, acc *Accumulator) error {
	for _, formName := range spec.FormNames() {
		form, ok := forms[formName]
		if !ok || form == nil {
			slog.Debug("数据中不存在该表单，跳过通用检查", "form_name", formName)
			continue
		}
		if _, err := checkForm(form, models.ColumnRecordID); err != nil {
			return fmt.Errorf("表单 %s 结构不完整: %w", formName, err)
		}

		checked := 0
		for _, rule := range spec.FieldsOf(formName) {
			if rule.Kind == KindNone {
				continue
			}
			if !form.HasColumn(rule.FieldName) {
				slog.Warn("表单中缺少字段，跳过检查", "form_name", formName, "field_name", rule.FieldName)
				continue
			}

			if err := CheckDtype(form, formName, rule, acc); err != nil {
				return err
			}
			if err := CheckRange(form, formName, rule, acc); err != nil {
				return err
			}
			checked++
		}

		slog.Info("通用检查完成", "form_name", formName, "fields", checked, "rows", len(form.Rows))
	}
	return nil
}

// CheckDtype 类型检查：非空且无法转换为声明类型的值为异常
func CheckDtype(form *models.Form, formName string, rule FieldRule, acc *Accumulator) error {
	if rule.Kind == KindNone {
		return nil
	}

	var keys []RecordKey
	seen := make(map[string]bool)
	for _, row := range form.Rows {
		value := row[rule.FieldName]
		if models.IsNull(value) {
			continue
		}
		if _, err := ToScalar(value, rule.Kind, rule.ValidationType); err != nil {
			keys = appendKey(keys, seen, rowKey(form, row))
		}
	}

	reason := fmt.Sprintf("invalid data type (%s)", rule.Kind)
	return acc.Record(form, rule.FieldName, formName, keys, reason)
}

// CheckRange 范围检查：只有成功转换的值参与，原因中只列出被违反的边界
func CheckRange(form *models.Form, formName string, rule FieldRule, acc *Accumulator) error {
	if rule.Kind == KindNone || !rule.HasBounds() {
		return nil
	}

	reasons := make([]string, 0)
	grouped := make(map[string][]RecordKey)
	seen := make(map[string]map[string]bool)

	for _, row := range form.Rows {
		value, err := ToScalar(row[rule.FieldName], rule.Kind, rule.ValidationType)
		if err != nil {
			continue
		}

		reason, violated := rangeViolation(rule, value)
		if !violated {
			continue
		}
		if _, ok := grouped[reason]; !ok {
			reasons = append(reasons, reason)
			seen[reason] = make(map[string]bool)
		}
		grouped[reason] = appendKey(grouped[reason], seen[reason], rowKey(form, row))
	}

	for _, reason := range reasons {
		if err := acc.Record(form, rule.FieldName, formName, grouped[reason], reason); err != nil {
			return err
		}
	}
	return nil
}

// rangeViolation 判断取值是否越界并生成原因
func rangeViolation(rule FieldRule, value Scalar) (string, bool) {
	var parts []string
	if rule.Min != nil && value.Compare(*rule.Min) < 0 {
		parts = append(parts, "min: "+rule.Min.String())
	}
	if rule.Max != nil && value.Compare(*rule.Max) > 0 {
		parts = append(parts, "max: "+rule.Max.String())
	}
	if len(parts) == 0 {
		return "", false
	}
	return fmt.Sprintf("value outside permitted range (%s)", strings.Join(parts, ", ")), true
}

// rowKey 重复表单使用带实例号的键，否则只用 record_id
func rowKey(form *models.Form, row map[string]interface{}) RecordKey {
	if form.IsRepeating() {
		return InstancedKey(models.RecordID(row), models.Instance(row))
	}
	return SimpleKey(models.RecordID(row))
}

func appendKey(keys []RecordKey, seen map[string]bool, key RecordKey) []RecordKey {
	id := key.String()
	if seen[id] {
		return keys
	}
	seen[id] = true
	return append(keys, key)
}
