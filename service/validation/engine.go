/*
 * @module service/validation/engine
 * @description 校验引擎入口：一次运行内依次执行通用检查、自定义规则与结果整理
 * @architecture 编排层 - 每次运行独立的累加器，无共享状态，不做任何 I/O
 * @stateFlow ValidationSpec + 表单 + 注册表 -> 新累加器 -> 通用检查 -> 自定义规则 -> Finalize -> OutlierTable
 * @rules 结构性错误(字典/契约/表单)立即中止并返回错误；数据质量问题只记录为异常
 * @dependencies log/slog
 * @refs rule_executor.go, custom_rules.go, accumulator.go
 */

package validation

import (
	"fmt"
	"log/slog"
	"time"

	"redcap-outlier-service/service/models"
)

// Validate 执行一次完整的校验运行，registry 可以为空
func Validate(spec *ValidationSpec, forms map[string]*models.Form, registry *Registry, filterToComplete bool) (*OutlierTable, error) {
	if spec == nil {
		return nil, fmt.Errorf("校验规格不能为空")
	}

	start := time.Now()
	acc := NewAccumulator()

	if err := RunGenericChecks(spec, forms, acc); err != nil {
		return nil, fmt.Errorf("通用检查失败: %w", err)
	}
	generic := acc.Len()

	if registry != nil {
		if err := registry.Run(acc); err != nil {
			return nil, fmt.Errorf("自定义规则执行失败: %w", err)
		}
	}

	custom := acc.Len() - generic

	table, err := acc.Finalize(filterToComplete)
	if err != nil {
		return nil, err
	}

	slog.Info("校验运行完成",
		"forms", len(forms),
		"generic_outliers", generic,
		"custom_outliers", custom,
		"total", table.Len(),
		"filter_to_complete", filterToComplete,
		"duration", time.Since(start))

	return table, nil
}
