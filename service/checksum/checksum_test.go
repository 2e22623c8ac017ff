/*
 * @module service/checksum/checksum_test
 * @description CPF/CNS 校验算法单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @stateFlow 输入号码 -> 校验 -> 断言
 * @rules 覆盖长度错误、校验码错误、两种返回模式与单字符变异
 * @dependencies testing, testify
 * @refs cpf.go, cns.go
 */

package checksum

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCPF(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "标准测试号码", input: "11144477735", expected: true},
		{name: "带格式符号", input: "111.444.777-35", expected: true},
		{name: "另一个有效号码", input: "52998224725", expected: true},
		{name: "第二位校验码错误", input: "11144477734", expected: false},
		{name: "第一位校验码错误", input: "11144477725", expected: false},
		{name: "全部相同数字", input: "11111111111", expected: false},
		{name: "全零", input: "00000000000", expected: false},
		{name: "10位", input: "1114447773", expected: false},
		{name: "12位", input: "111444777350", expected: false},
		{name: "空字符串", input: "", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsValidCPF(tc.input))
		})
	}
}

func TestValidateCPF_ReturnModes(t *testing.T) {
	result := ValidateCPF("111.444.777-35", ReturnNormalized)
	require.True(t, result.Valid)
	require.NotNil(t, result.Value)
	assert.Equal(t, "11144477735", *result.Value)

	result = ValidateCPF("11144477734", ReturnNormalized)
	assert.False(t, result.Valid)
	assert.Nil(t, result.Value)

	result = ValidateCPF("11144477735", ReturnBoolean)
	assert.True(t, result.Valid)
	assert.Nil(t, result.Value)
}

func TestValidateCNS(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "首位1校验码为0", input: "123456789010000", expected: true},
		{name: "首位2", input: "200000000010009", expected: true},
		{name: "首位1普通校验码", input: "198765432100003", expected: true},
		{name: "校验码为10时使用001分支", input: "100000000060018", expected: true},
		{name: "首位7", input: "700000000000005", expected: true},
		{name: "首位8", input: "898000000000002", expected: true},
		{name: "首位9", input: "900000000000008", expected: true},
		{name: "首尾空白会被去除", input: " 123456789010000 ", expected: true},
		{name: "首位7校验失败", input: "700000000000006", expected: false},
		{name: "首位3无效", input: "300000000000000", expected: false},
		{name: "14位", input: "12345678901000", expected: false},
		{name: "16位", input: "1234567890100000", expected: false},
		{name: "内部包含空格", input: "1234567890 0000", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsValidCNS(tc.input))
		})
	}
}

func TestValidateCNS_LengthFourteenAlwaysInvalid(t *testing.T) {
	for _, input := range []string{"12345678901000", "70000000000000", "99999999999999"} {
		assert.False(t, IsValidCNS(input), input)
	}
}

func TestValidateCNS_SingleDigitMutation(t *testing.T) {
	validNumbers := []string{"123456789010000", "200000000010009", "100000000060018", "198765432100003"}

	for _, number := range validNumbers {
		for pos := 0; pos < len(number); pos++ {
			// 第5位权重为11，对模11求和没有影响，算法本身无法发现该位的变化
			if pos == 4 {
				continue
			}
			for d := byte('0'); d <= '9'; d++ {
				if number[pos] == d {
					continue
				}
				mutated := number[:pos] + string(d) + number[pos+1:]
				assert.False(t, IsValidCNS(mutated), fmt.Sprintf("%s -> %s", number, mutated))
			}
		}
	}
}

func TestValidateCNS_WeightElevenPosition(t *testing.T) {
	// 已知局限：第5位变化不会改变校验结果
	assert.True(t, IsValidCNS("123406789010000"))
}

func TestValidateCNS_ReturnModes(t *testing.T) {
	result := ValidateCNS(" 700000000000005", ReturnNormalized)
	require.True(t, result.Valid)
	assert.Equal(t, "700000000000005", *result.Value)

	result = ValidateCNS("700000000000006", ReturnNormalized)
	assert.False(t, result.Valid)
	assert.Nil(t, result.Value)
}
