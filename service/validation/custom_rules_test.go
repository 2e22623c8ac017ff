/*
 * @module service/validation/custom_rules_test
 * @description 自定义规则注册表与内置规则测试
 * @architecture 测试层 - 内存表单
 * @stateFlow 注册规则 -> Run -> 断言累加结果或契约错误
 * @rules 覆盖契约检查、空结果、规则顺序与内置规则行为
 * @dependencies testing, testify
 * @refs custom_rules.go, builtin_rules.go
 */

package validation

import (
	"errors"
	"testing"

	"redcap-outlier-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identificacaoForm() *models.Form {
	return newForm("identificacao",
		[]string{"record_id", "redcap_data_access_group", "cpf", "cns", "identificacao_complete"},
		map[string]interface{}{"record_id": "1", "redcap_data_access_group": "sp", "cpf": "111.444.777-35", "cns": "700000000000005", "identificacao_complete": "2"},
		map[string]interface{}{"record_id": "2", "redcap_data_access_group": "sp", "cpf": "11144477734", "cns": "700000000000006", "identificacao_complete": "2"},
		map[string]interface{}{"record_id": "3", "redcap_data_access_group": "rj", "cpf": nil, "cns": "", "identificacao_complete": "1"},
		map[string]interface{}{"record_id": "4", "redcap_data_access_group": "rj", "cpf": "-999", "cns": "123456789010000", "identificacao_complete": "2"},
	)
}

func TestRegistry_RegisterAndOrder(t *testing.T) {
	registry := NewRegistry()
	noop := func() (*CustomRuleResult, error) { return nil, nil }

	require.NoError(t, registry.Register("b_rule", noop))
	require.NoError(t, registry.Register("a_rule", noop))

	assert.Error(t, registry.Register("a_rule", noop))
	assert.Error(t, registry.Register("", noop))
	assert.Error(t, registry.Register("nil_rule", nil))

	assert.Equal(t, []string{"b_rule", "a_rule"}, registry.Names())
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_EmptyInvalidRecordsAppendsNothing(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("empty", func() (*CustomRuleResult, error) {
		return &CustomRuleResult{
			Form:           patientsForm(),
			Column:         "age",
			FormName:       "patients",
			InvalidRecords: []RecordKey{},
			ReasonDesc:     "nothing",
		}, nil
	}))

	acc := NewAccumulator()
	require.NoError(t, registry.Run(acc))
	assert.Equal(t, 0, acc.Len())
}

func TestRegistry_ContractViolation(t *testing.T) {
	valid := func() *CustomRuleResult {
		return &CustomRuleResult{
			Form:           patientsForm(),
			Column:         "age",
			FormName:       "patients",
			InvalidRecords: []RecordKey{SimpleKey("1")},
			ReasonDesc:     "reason",
		}
	}

	testCases := []struct {
		name   string
		result func() *CustomRuleResult
	}{
		{name: "缺少原因", result: func() *CustomRuleResult { r := valid(); r.ReasonDesc = ""; return r }},
		{name: "缺少表单", result: func() *CustomRuleResult { r := valid(); r.Form = nil; return r }},
		{name: "缺少列名", result: func() *CustomRuleResult { r := valid(); r.Column = " "; return r }},
		{name: "缺少表单名", result: func() *CustomRuleResult { r := valid(); r.FormName = ""; return r }},
		{name: "结果为空", result: func() *CustomRuleResult { return nil }},
		{name: "键类型混用", result: func() *CustomRuleResult {
			r := valid()
			r.InvalidRecords = []RecordKey{SimpleKey("1"), InstancedKey("2", nil)}
			return r
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry()
			require.NoError(t, registry.Register("broken_rule", func() (*CustomRuleResult, error) {
				return tc.result(), nil
			}))

			acc := NewAccumulator()
			err := registry.Run(acc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrContractViolation))
			assert.Contains(t, err.Error(), "broken_rule")
			assert.Equal(t, 0, acc.Len())
		})
	}
}

func TestRegistry_RuleErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	registry := NewRegistry()
	require.NoError(t, registry.Register("failing", func() (*CustomRuleResult, error) { return nil, boom }))

	err := registry.Run(NewAccumulator())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "failing")
}

func TestChecksumRule(t *testing.T) {
	forms := map[string]*models.Form{"identificacao": identificacaoForm()}

	result, err := ChecksumRule(forms, "identificacao", "cpf", ChecksumCPF, "")()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{SimpleKey("2"), SimpleKey("4")}, result.InvalidRecords)
	assert.Equal(t, ReasonInvalidCPF, result.ReasonDesc)

	result, err = ChecksumRule(forms, "identificacao", "cns", ChecksumCNS, "CNS inválido")()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{SimpleKey("2")}, result.InvalidRecords)
	assert.Equal(t, "CNS inválido", result.ReasonDesc)

	_, err = ChecksumRule(forms, "identificacao", "cpf", ChecksumFormat("rg"), "")()
	assert.Error(t, err)

	_, err = ChecksumRule(forms, "missing", "cpf", ChecksumCPF, "")()
	assert.Error(t, err)
}

func TestMissingValueRule(t *testing.T) {
	forms := map[string]*models.Form{"identificacao": identificacaoForm()}

	result, err := MissingValueRule(forms, "identificacao", "cpf", []string{"-999"}, "")()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{SimpleKey("3"), SimpleKey("4")}, result.InvalidRecords)
	assert.Equal(t, ReasonMissingValue, result.ReasonDesc)
}

func TestCrossFormMatchRule(t *testing.T) {
	forms := map[string]*models.Form{
		"diagnostico": newForm("diagnostico",
			[]string{"record_id", "redcap_data_access_group", "doenca_cid10", "diagnostico_complete"},
			map[string]interface{}{"record_id": "1", "redcap_data_access_group": "", "doenca_cid10": "Diabetes mellitus tipo 2 - E11", "diagnostico_complete": "2"},
			map[string]interface{}{"record_id": "2", "redcap_data_access_group": "", "doenca_cid10": "Hipertensão - I10", "diagnostico_complete": "2"},
			map[string]interface{}{"record_id": "3", "redcap_data_access_group": "", "doenca_cid10": "sem código", "diagnostico_complete": "2"},
		),
		"comorbidade": newForm("comorbidade",
			[]string{"record_id", "redcap_data_access_group", "redcap_repeat_instance", "cid10_comorbidade", "comorbidade_complete"},
			map[string]interface{}{"record_id": "1", "redcap_data_access_group": "", "redcap_repeat_instance": 1, "cid10_comorbidade": "E11", "comorbidade_complete": "2"},
			map[string]interface{}{"record_id": "1", "redcap_data_access_group": "", "redcap_repeat_instance": 2, "cid10_comorbidade": "J45", "comorbidade_complete": "2"},
			map[string]interface{}{"record_id": "2", "redcap_data_access_group": "", "redcap_repeat_instance": 1, "cid10_comorbidade": "E11", "comorbidade_complete": "2"},
			map[string]interface{}{"record_id": "3", "redcap_data_access_group": "", "redcap_repeat_instance": 1, "cid10_comorbidade": "sem código", "comorbidade_complete": "2"},
		),
	}

	rule := CrossFormMatchRule(forms, CrossFormMatch{
		SourceForm:   "diagnostico",
		SourceColumn: "doenca_cid10",
		Part:         1,
		TargetForm:   "comorbidade",
		TargetColumn: "cid10_comorbidade",
		Reason:       "CID10 do diagnóstico igual ao CID10 da comorbidade",
	})

	result, err := rule()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{InstancedKey("1", intPtr(1))}, result.InvalidRecords)
	assert.Equal(t, "comorbidade", result.FormName)
	assert.Equal(t, "cid10_comorbidade", result.Column)

	_, err = CrossFormMatchRule(forms, CrossFormMatch{SourceForm: "diagnostico", SourceColumn: "doenca_cid10",
		TargetForm: "comorbidade", TargetColumn: "cid10_comorbidade"})()
	assert.Error(t, err)
}

func TestRequiredFieldRule(t *testing.T) {
	form := newForm("pregnancy",
		[]string{"record_id", "redcap_data_access_group", "sex", "weeks", "pregnancy_complete"},
		map[string]interface{}{"record_id": "1", "redcap_data_access_group": "", "sex": "2", "weeks": "", "pregnancy_complete": "2"},
		map[string]interface{}{"record_id": "2", "redcap_data_access_group": "", "sex": "1", "weeks": nil, "pregnancy_complete": "2"},
		map[string]interface{}{"record_id": "3", "redcap_data_access_group": "", "sex": "2", "weeks": "12", "pregnancy_complete": "2"},
	)
	forms := map[string]*models.Form{"pregnancy": form}
	evaluator := NewBranchingEvaluator()

	rule := FieldRule{FieldName: "weeks", FormName: "pregnancy", Required: true, BranchingLogic: "[sex] = '2'"}
	result, err := RequiredFieldRule(forms, rule, evaluator, "")()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{SimpleKey("1")}, result.InvalidRecords)
	assert.Equal(t, ReasonRequiredMissed, result.ReasonDesc)

	rule.BranchingLogic = "datediff([dob], 'today', 'y') > 18"
	result, err = RequiredFieldRule(forms, rule, evaluator, "")()
	require.NoError(t, err)
	assert.Equal(t, []RecordKey{SimpleKey("1"), SimpleKey("2")}, result.InvalidRecords)
}

func TestRegisterRequiredFields(t *testing.T) {
	codebook := []models.FieldMetadata{
		{FieldName: "age", FormName: "patients", FieldType: "text", RequiredField: "y"},
		{FieldName: "visit_date", FormName: "patients", FieldType: "text", ValidationType: "date_ymd"},
		{FieldName: "height", FormName: "patients", FieldType: "text", RequiredField: "y"},
	}
	spec, err := BuildValidationSpec(codebook)
	require.NoError(t, err)

	registry := NewRegistry()
	forms := map[string]*models.Form{"patients": patientsForm()}
	require.NoError(t, RegisterRequiredFields(registry, spec, forms, NewBranchingEvaluator(), ""))

	assert.Equal(t, []string{"required:age"}, registry.Names())
}
