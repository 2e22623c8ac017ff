/*
 * @module service/validation/rule_executor_test
 * @description 通用规则执行器测试
 * @architecture 测试层 - 内存表单
 * @stateFlow 规格 + 表单 -> RunGenericChecks -> 断言累加结果
 * @rules 覆盖闭区间边界、类型错误不重复报告、空值、单侧边界、重复表单与日期范围
 * @dependencies testing, testify
 * @refs rule_executor.go
 */

package validation

import (
	"testing"

	"redcap-outlier-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ageForm(values ...interface{}) *models.Form {
	form := models.NewForm("patients", []string{"record_id", "redcap_data_access_group", "age", "patients_complete"})
	for i, v := range values {
		form.AddRow(map[string]interface{}{
			"record_id":                string(rune('a' + i)),
			"redcap_data_access_group": "site",
			"age":                      v,
			"patients_complete":        "2",
		})
	}
	return form
}

func runChecks(t *testing.T, codebook []models.FieldMetadata, forms map[string]*models.Form) *OutlierTable {
	t.Helper()
	spec, err := BuildValidationSpec(codebook)
	require.NoError(t, err)

	acc := NewAccumulator()
	require.NoError(t, RunGenericChecks(spec, forms, acc))

	table, err := acc.Finalize(false)
	require.NoError(t, err)
	return table
}

func TestRunGenericChecks_InclusiveBounds(t *testing.T) {
	codebook := []models.FieldMetadata{textField("patients", "age", "integer", "0", "120")}
	form := ageForm("0", "120", "-1", "121", "60")

	table := runChecks(t, codebook, map[string]*models.Form{"patients": form})

	require.Equal(t, 2, table.Len())
	assert.Equal(t, "c", table.Records[0].RecordID)
	assert.Equal(t, "value outside permitted range (min: 0)", table.Records[0].Reason)
	assert.Equal(t, "d", table.Records[1].RecordID)
	assert.Equal(t, "value outside permitted range (max: 120)", table.Records[1].Reason)
}

func TestRunGenericChecks_DtypeNotDoubleReported(t *testing.T) {
	codebook := []models.FieldMetadata{textField("patients", "age", "number", "0", "120")}
	form := ageForm("abc", "12.5", "NaN")

	table := runChecks(t, codebook, map[string]*models.Form{"patients": form})

	require.Equal(t, 2, table.Len())
	for _, r := range table.Records {
		assert.Equal(t, "invalid data type (numeric)", r.Reason)
	}
	assert.Equal(t, "a", table.Records[0].RecordID)
	assert.Equal(t, "c", table.Records[1].RecordID)
}

func TestRunGenericChecks_NullsNeverFlagged(t *testing.T) {
	codebook := []models.FieldMetadata{textField("patients", "age", "integer", "10", "20")}
	form := ageForm(nil, "", "   ")

	table := runChecks(t, codebook, map[string]*models.Form{"patients": form})
	assert.Equal(t, 0, table.Len())
}

func TestRunGenericChecks_SingleBound(t *testing.T) {
	testCases := []struct {
		name     string
		min, max string
		flagged  []string
	}{
		{name: "只有最小值", min: "10", max: "", flagged: []string{"a"}},
		{name: "只有最大值", min: "", max: "10", flagged: []string{"c"}},
		{name: "没有边界", min: "", max: "", flagged: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			codebook := []models.FieldMetadata{textField("patients", "age", "integer", tc.min, tc.max)}
			table := runChecks(t, codebook, map[string]*models.Form{"patients": ageForm("5", "10", "15")})

			var ids []string
			for _, r := range table.Records {
				ids = append(ids, r.RecordID)
			}
			assert.Equal(t, tc.flagged, ids)
		})
	}
}

func TestRunGenericChecks_InvertedBoundsNameBoth(t *testing.T) {
	codebook := []models.FieldMetadata{textField("patients", "age", "integer", "10", "5")}
	table := runChecks(t, codebook, map[string]*models.Form{"patients": ageForm("7")})

	require.Equal(t, 1, table.Len())
	assert.Equal(t, "value outside permitted range (min: 10, max: 5)", table.Records[0].Reason)
}

func TestRunGenericChecks_RepeatingFormUsesInstances(t *testing.T) {
	codebook := []models.FieldMetadata{textField("visits", "temp", "number", "30", "45")}
	table := runChecks(t, codebook, map[string]*models.Form{"visits": visitsForm()})

	require.Equal(t, 1, table.Len())
	assert.Equal(t, "1", table.Records[0].RecordID)
	require.NotNil(t, table.Records[0].Instance)
	assert.Equal(t, 2, *table.Records[0].Instance)
	assert.Equal(t, "value outside permitted range (max: 45)", table.Records[0].Reason)
}

func TestRunGenericChecks_DateRange(t *testing.T) {
	codebook := []models.FieldMetadata{textField("visits", "visit_date", "date_dmy", "2020-01-01", "2024-12-31")}
	form := newForm("visits",
		[]string{"record_id", "redcap_data_access_group", "visit_date", "visits_complete"},
		map[string]interface{}{"record_id": "1", "redcap_data_access_group": "", "visit_date": "2019-12-31", "visits_complete": "2"},
		map[string]interface{}{"record_id": "2", "redcap_data_access_group": "", "visit_date": "31/12/2024", "visits_complete": "2"},
		map[string]interface{}{"record_id": "3", "redcap_data_access_group": "", "visit_date": "2025-01-01", "visits_complete": "2"},
		map[string]interface{}{"record_id": "4", "redcap_data_access_group": "", "visit_date": "2024-02-30", "visits_complete": "2"},
	)

	table := runChecks(t, codebook, map[string]*models.Form{"visits": form})

	require.Equal(t, 3, table.Len())
	assert.Equal(t, "4", table.Records[0].RecordID)
	assert.Equal(t, "invalid data type (date)", table.Records[0].Reason)
	assert.Equal(t, "1", table.Records[1].RecordID)
	assert.Equal(t, "value outside permitted range (min: 2020-01-01)", table.Records[1].Reason)
	assert.Equal(t, "3", table.Records[2].RecordID)
	assert.Equal(t, "value outside permitted range (max: 2024-12-31)", table.Records[2].Reason)
}

func TestRunGenericChecks_MissingFormOrField(t *testing.T) {
	codebook := []models.FieldMetadata{
		textField("patients", "height", "integer", "0", "250"),
		textField("other", "x", "integer", "0", "1"),
	}
	table := runChecks(t, codebook, map[string]*models.Form{"patients": ageForm("999")})
	assert.Equal(t, 0, table.Len())
}

func TestRunGenericChecks_MalformedFormFails(t *testing.T) {
	codebook := []models.FieldMetadata{textField("patients", "age", "integer", "0", "120")}
	spec, err := BuildValidationSpec(codebook)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		columns []string
	}{
		{name: "缺少数据访问组", columns: []string{"record_id", "age", "patients_complete"}},
		{name: "缺少状态列", columns: []string{"record_id", "redcap_data_access_group", "age"}},
		{name: "没有任何列", columns: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// 所有值都合法，仍应因结构不完整而失败
			form := newForm("patients", tc.columns)
			form.Rows = append(form.Rows, map[string]interface{}{"record_id": "1", "age": "40"})

			err := RunGenericChecks(spec, map[string]*models.Form{"patients": form}, NewAccumulator())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormMalformed)
		})
	}
}

func TestCheckRange_UncoercibleValuesPass(t *testing.T) {
	rule := FieldRule{FieldName: "age", FormName: "patients", ValidationType: "integer", Kind: KindNumeric,
		Max: &Scalar{Kind: KindNumeric, Number: 1}}

	acc := NewAccumulator()
	require.NoError(t, CheckRange(ageForm("abc", nil, "0"), "patients", rule, acc))
	assert.Equal(t, 0, acc.Len())
}
