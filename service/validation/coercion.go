/*
 * @module service/validation/coercion
 * @description 单元格取值的类型转换：数值、日期与边界值的比较和格式化
 * @architecture 工具函数模式 - 无状态转换
 * @stateFlow 原始值 -> 空值判断 -> 类型转换 -> Scalar
 * @rules 空值不参与转换；NaN/Inf、布尔值与十六进制字面量视为非数值；日期优先按 ISO 格式解析，再按声明的日期顺序解析
 * @dependencies github.com/spf13/cast
 * @refs rule_executor.go, spec_builder.go
 */

package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
)

// DataKind 可校验的数据类别
type DataKind int

const (
	KindNone DataKind = iota
	KindNumeric
	KindDate
)

// String 返回类别名称，用于异常原因描述
func (k DataKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	default:
		return "none"
	}
}

var errNullValue = errors.New("空值")

// decimalPattern 十进制数字面量，不接受十六进制、下划线分隔与 NaN/Inf
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Scalar 转换后的可比较值
type Scalar struct {
	Kind   DataKind
	Number float64
	Time   time.Time
}

// String 格式化为异常原因中展示的形式
func (s Scalar) String() string {
	switch s.Kind {
	case KindNumeric:
		return strconv.FormatFloat(s.Number, 'f', -1, 64)
	case KindDate:
		if s.Time.Hour() == 0 && s.Time.Minute() == 0 && s.Time.Second() == 0 {
			return s.Time.Format("2006-01-02")
		}
		return s.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// Compare 比较两个同类值，返回 -1/0/1
func (s Scalar) Compare(other Scalar) int {
	switch s.Kind {
	case KindNumeric:
		switch {
		case s.Number < other.Number:
			return -1
		case s.Number > other.Number:
			return 1
		}
		return 0
	case KindDate:
		return s.Time.Compare(other.Time)
	default:
		return 0
	}
}

// isoLayouts / dayFirstLayouts / monthFirstLayouts 补充解析格式
var (
	isoLayouts = []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	}
	dayFirstLayouts = []string{
		"02-01-2006",
		"02/01/2006",
		"02-01-2006 15:04",
		"02/01/2006 15:04",
		"02-01-2006 15:04:05",
		"02/01/2006 15:04:05",
	}
	monthFirstLayouts = []string{
		"01-02-2006",
		"01/02/2006",
		"01-02-2006 15:04",
		"01/02/2006 15:04",
		"01-02-2006 15:04:05",
		"01/02/2006 15:04:05",
	}
)

// classifyType 根据校验子类型判断数据类别
func classifyType(validationType string) DataKind {
	t := strings.ToLower(strings.TrimSpace(validationType))
	switch {
	case t == "integer" || strings.HasPrefix(t, "number"):
		return KindNumeric
	case strings.HasPrefix(t, "date"):
		return KindDate
	default:
		return KindNone
	}
}

// ToNumber 将单元格转换为数值
func ToNumber(value interface{}) (float64, error) {
	if models.IsNull(value) {
		return 0, errNullValue
	}
	switch v := value.(type) {
	case bool:
		return 0, fmt.Errorf("无法转换为数值: 布尔值 %v", v)
	case string:
		v = strings.TrimSpace(v)
		if !decimalPattern.MatchString(v) {
			return 0, fmt.Errorf("无法转换为数值: %q 不是十进制数", v)
		}
		value = v
	}

	number, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("无法转换为数值: %w", err)
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, fmt.Errorf("无法转换为数值: %v", value)
	}
	return number, nil
}

// ToDate 将单元格转换为日期，validationType 决定非 ISO 格式的日月顺序
func ToDate(value interface{}, validationType string) (time.Time, error) {
	if models.IsNull(value) {
		return time.Time{}, errNullValue
	}

	s, ok := value.(string)
	if !ok {
		return cast.ToTimeE(value)
	}
	s = strings.TrimSpace(s)

	if t, err := cast.StringToDate(s); err == nil {
		return t, nil
	}

	layouts := append([]string{}, isoLayouts...)
	if strings.Contains(strings.ToLower(validationType), "mdy") {
		layouts = append(layouts, monthFirstLayouts...)
	} else {
		layouts = append(layouts, dayFirstLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("无法解析日期: %s", s)
}

// ToScalar 按数据类别转换单元格
func ToScalar(value interface{}, kind DataKind, validationType string) (Scalar, error) {
	switch kind {
	case KindNumeric:
		// number_*_comma_decimal 子类型使用逗号作为小数点
		if str, ok := value.(string); ok && strings.Contains(validationType, "comma_decimal") {
			value = strings.Replace(str, ",", ".", 1)
		}
		n, err := ToNumber(value)
		if err != nil {
			return Scalar{}, err
		}
		return Scalar{Kind: KindNumeric, Number: n}, nil
	case KindDate:
		t, err := ToDate(value, validationType)
		if err != nil {
			return Scalar{}, err
		}
		return Scalar{Kind: KindDate, Time: t}, nil
	default:
		return Scalar{}, fmt.Errorf("不支持的数据类别: %d", kind)
	}
}
