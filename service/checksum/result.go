/*
 * @module service/checksum/result
 * @description 证件号校验结果与返回模式
 * @architecture 工具层 - 值对象
 * @stateFlow 校验算法 -> Result(有效性 + 可选规范化值)
 * @rules ReturnNormalized 模式下只有校验成功才携带规范化值
 * @dependencies 无
 * @refs cpf.go, cns.go
 */

package checksum

// Mode 校验结果返回模式
type Mode int

const (
	// ReturnNormalized 成功返回规范化后的值，失败返回空值
	ReturnNormalized Mode = iota
	// ReturnBoolean 只返回是否有效
	ReturnBoolean
)

// Result 校验结果
type Result struct {
	Valid bool
	// Value 仅在 ReturnNormalized 模式且校验成功时非空
	Value *string
}

func valid(mode Mode, normalized string) Result {
	if mode == ReturnNormalized {
		return Result{Valid: true, Value: &normalized}
	}
	return Result{Valid: true}
}

func invalid(Mode) Result {
	return Result{Valid: false}
}
