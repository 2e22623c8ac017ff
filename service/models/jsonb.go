/*
 * @module service/models/jsonb
 * @description JSONB 字段类型，在 PostgreSQL jsonb 列与 map 之间转换
 * @architecture 数据模型层
 * @stateFlow map -> Value -> 数据库 -> Scan -> map
 * @rules 空值扫描为 nil；只接受 []byte 与 string 形式的数据库值
 * @dependencies database/sql/driver, encoding/json
 * @refs service/models/outlier.go, service/report/report_store.go
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONB 通用 JSON 类型，用于保存运行摘要等半结构化数据
type JSONB map[string]interface{}

// Scan 实现 Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("类型断言失败: 不是 []byte 或 string")
	}
	return json.Unmarshal(bytes, j)
}

// Value 实现 Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
