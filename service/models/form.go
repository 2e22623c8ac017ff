/*
 * @module service/models/form
 * @description 表单数据表模型，一个表单对应一张记录表，行是记录实例
 * @architecture 数据模型层
 * @stateFlow 数据源加载 -> Form -> 校验引擎只读访问
 * @rules 必须包含 record_id、redcap_data_access_group 与至少一个 *_complete 列；
 *        多个 *_complete 列时以最后一个为准；redcap_repeat_instance 可选
 * @dependencies github.com/spf13/cast
 * @refs service/validation/accumulator.go
 */

package models

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// 表单保留列
const (
	ColumnRecordID          = "record_id"
	ColumnDataAccessGroup   = "redcap_data_access_group"
	ColumnRepeatInstrument  = "redcap_repeat_instrument"
	ColumnRepeatInstance    = "redcap_repeat_instance"
	CompleteColumnSuffix    = "_complete"
	MetadataCollectionName  = "_metadata"
	DefaultCheckboxSplitter = "___"
)

// Form 表单数据表
type Form struct {
	Name    string                   `json:"name,omitempty"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// NewForm 创建表单数据表
func NewForm(name string, columns []string) *Form {
	return &Form{
		Name:    name,
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
	}
}

// AddRow 追加一行，未知列按名称排序后登记到列清单末尾
func (f *Form) AddRow(row map[string]interface{}) {
	var unknown []string
	for key := range row {
		if !f.HasColumn(key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	f.Columns = append(f.Columns, unknown...)
	f.Rows = append(f.Rows, row)
}

// Clone 复制表单结构与行，行内容按浅拷贝复制；列清单会补齐行中出现但未声明的列
func (f *Form) Clone(name string) *Form {
	columns := make([]string, len(f.Columns))
	copy(columns, f.Columns)
	clone := NewForm(name, columns)
	for _, row := range f.Rows {
		copied := make(map[string]interface{}, len(row))
		for k, v := range row {
			copied[k] = v
		}
		clone.AddRow(copied)
	}
	return clone
}

// HasColumn 是否包含指定列
func (f *Form) HasColumn(column string) bool {
	for _, c := range f.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// CompleteColumn 返回最后一个以 _complete 结尾的列
func (f *Form) CompleteColumn() (string, bool) {
	for i := len(f.Columns) - 1; i >= 0; i-- {
		if strings.HasSuffix(f.Columns[i], CompleteColumnSuffix) {
			return f.Columns[i], true
		}
	}
	return "", false
}

// IsRepeating 是否为重复表单（包含 redcap_repeat_instance 列）
func (f *Form) IsRepeating() bool {
	return f.HasColumn(ColumnRepeatInstance)
}

// RecordID 返回行的 record_id 字符串形式
func RecordID(row map[string]interface{}) string {
	return cast.ToString(row[ColumnRecordID])
}

// Instance 返回行的重复实例号，不存在或为空时返回 nil
func Instance(row map[string]interface{}) *int {
	value, ok := row[ColumnRepeatInstance]
	if !ok || IsNull(value) {
		return nil
	}
	instance, err := cast.ToIntE(value)
	if err != nil {
		return nil
	}
	return &instance
}

// IsNull 判断单元格是否为空值（nil 或空白字符串）
func IsNull(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	default:
		return false
	}
}

// CellString 单元格的展示字符串，空值为空串，日期按 ISO 格式输出
func CellString(value interface{}) string {
	if IsNull(value) {
		return ""
	}
	if t, ok := value.(time.Time); ok {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	}
	return cast.ToString(value)
}
