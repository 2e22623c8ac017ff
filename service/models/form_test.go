/*
 * @module service/models/form_test
 * @description 表单数据表测试
 * @architecture 单元测试
 * @stateFlow 构造表单 -> AddRow/Clone -> 断言列清单与源表单
 * @rules 覆盖未声明列的登记顺序与复制后源表单不变
 * @dependencies testing, testify
 * @refs form.go
 */

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForm_AddRowRegistersColumnsInOrder(t *testing.T) {
	form := NewForm("patients", nil)
	form.AddRow(map[string]interface{}{"patients_complete": "2", "age": "1", "record_id": "1", "redcap_data_access_group": ""})
	form.AddRow(map[string]interface{}{"record_id": "2", "weight": "70"})

	assert.Equal(t, []string{"age", "patients_complete", "record_id", "redcap_data_access_group", "weight"}, form.Columns)
	status, ok := form.CompleteColumn()
	require.True(t, ok)
	assert.Equal(t, "patients_complete", status)
}

func TestForm_CloneLeavesSourceUntouched(t *testing.T) {
	source := &Form{Rows: []map[string]interface{}{{"record_id": "1", "age": "40"}}}

	clone := source.Clone("patients")
	clone.Rows[0]["age"] = "41"
	clone.AddRow(map[string]interface{}{"record_id": "2", "height": "180"})

	assert.Equal(t, "patients", clone.Name)
	assert.Equal(t, []string{"age", "record_id", "height"}, clone.Columns)
	assert.Len(t, clone.Rows, 2)

	assert.Empty(t, source.Name)
	assert.Empty(t, source.Columns)
	assert.Len(t, source.Rows, 1)
	assert.Equal(t, "40", source.Rows[0]["age"])
}
