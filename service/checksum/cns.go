/*
 * @module service/checksum/cns
 * @description CNS（15位健康卡号）校验算法
 * @architecture 工具函数模式 - 无状态纯函数
 * @stateFlow 原始字符串 -> 去除首尾空白 -> 按首位数字选择算法 -> 结果
 * @rules 长度必须为15位；首位1/2按PIS重建校验，首位7/8/9按加权和模11校验，其余首位无效
 * @dependencies strconv, strings
 * @refs service/validation/builtin_rules.go
 */

package checksum

import (
	"strconv"
	"strings"
)

const (
	cnsLength     = 15
	cnsBaseLength = 11
)

// ValidateCNS 校验CNS号码
// 只去除首尾空白，内部字符不做清理
func ValidateCNS(raw string, mode Mode) Result {
	cns := strings.TrimSpace(raw)
	if len(cns) != cnsLength {
		return invalid(mode)
	}

	digits := make([]int, cnsLength)
	for i := 0; i < cnsLength; i++ {
		c := cns[i]
		if c < '0' || c > '9' {
			return invalid(mode)
		}
		digits[i] = int(c - '0')
	}

	switch cns[0] {
	case '1', '2':
		if cns == expectedDefinitiveCNS(cns[:cnsBaseLength], digits[:cnsBaseLength]) {
			return valid(mode, cns)
		}
		return invalid(mode)
	case '7', '8', '9':
		if weightedSum(digits, cnsLength)%11 == 0 {
			return valid(mode, cns)
		}
		return invalid(mode)
	default:
		return invalid(mode)
	}
}

// IsValidCNS 判断CNS号码是否有效
func IsValidCNS(raw string) bool {
	return ValidateCNS(raw, ReturnBoolean).Valid
}

// expectedDefinitiveCNS 根据前11位重建完整号码
func expectedDefinitiveCNS(base string, digits []int) string {
	sum := weightedSum(digits, cnsLength)
	check := cnsCheckDigit(sum)
	if check == 10 {
		check = cnsCheckDigit(sum + 2)
		return base + "001" + strconv.Itoa(check)
	}
	return base + "000" + strconv.Itoa(check)
}

// weightedSum 权重从 firstWeight 开始逐位递减
func weightedSum(digits []int, firstWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (firstWeight - i)
	}
	return sum
}

func cnsCheckDigit(sum int) int {
	remainder := sum % 11
	if remainder == 0 {
		return 0
	}
	return 11 - remainder
}
