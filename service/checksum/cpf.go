/*
 * @module service/checksum/cpf
 * @description CPF（11位个人识别号）校验算法
 * @architecture 工具函数模式 - 无状态纯函数
 * @stateFlow 原始字符串 -> 去除非数字字符 -> 两位校验码计算 -> 结果
 * @rules 长度必须为11位；两位校验码均需匹配；全部相同数字的号码视为无效
 * @dependencies strings, unicode
 * @refs service/validation/builtin_rules.go
 */

package checksum

import (
	"strings"
	"unicode"
)

const cpfLength = 11

// ValidateCPF 校验CPF号码
// 非数字字符会被忽略；ReturnNormalized 模式下成功时返回11位纯数字串
func ValidateCPF(raw string, mode Mode) Result {
	digits := make([]int, 0, cpfLength)
	for _, r := range raw {
		if unicode.IsDigit(r) && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}

	if len(digits) != cpfLength {
		return invalid(mode)
	}

	// 全部相同数字的号码可以通过校验码计算，但不是有效号码
	if isUniform(digits) {
		return invalid(mode)
	}

	if digits[9] != cpfCheckDigit(digits[:9], 10) {
		return invalid(mode)
	}
	if digits[10] != cpfCheckDigit(digits[:10], 11) {
		return invalid(mode)
	}

	var sb strings.Builder
	for _, d := range digits {
		sb.WriteByte(byte('0' + d))
	}
	return valid(mode, sb.String())
}

// IsValidCPF 判断CPF号码是否有效
func IsValidCPF(raw string) bool {
	return ValidateCPF(raw, ReturnBoolean).Valid
}

// cpfCheckDigit 权重从 firstWeight 递减到 2
func cpfCheckDigit(digits []int, firstWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (firstWeight - i)
	}
	return (sum * 10 % 11) % 10
}

func isUniform(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
