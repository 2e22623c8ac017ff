/*
 * @module service/validation/ruleset_test
 * @description 声明式规则集加载与注册测试
 * @architecture 测试层
 * @stateFlow YAML -> ParseRuleSet -> BuilderOptions/BuildRegistry -> 断言
 * @rules 覆盖全部规则类型、参数校验失败与重命名选项
 * @dependencies testing, testify
 * @refs ruleset.go
 */

package validation

import (
	"os"
	"path/filepath"
	"testing"

	"redcap-outlier-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRuleSet = `
version: "2024.1"
required_marker: "y"
exclude_patterns:
  - "^resp_"
filter_to_complete: true
renames:
  version: "v1"
  forms:
    dados_demograficos: identificacao
    ss_1: sintomas
rules:
  - name: check_invalid_cpf
    kind: checksum_cpf
    params:
      form: identificacao
      column: cpf
  - name: check_invalid_cns
    kind: checksum_cns
    params:
      form: identificacao
      column: cns
      reason: CNS inválido
  - name: check_missing_cpf
    kind: missing_value
    params:
      form: identificacao
      column: cpf
      missing_codes: ["-999", "-888"]
  - name: diag_cid_equals_comorb_cid
    kind: cross_form_match
    params:
      source_form: diagnostico
      source_column: doenca_cid10
      target_form: comorbidade
      target_column: cid10_comorbidade
      separator: " - "
      part: 1
      reason: CID10 Diagnóstico igual ao CID10 comorbidade
  - name: required
    kind: required_fields
`

func TestParseRuleSet(t *testing.T) {
	rs, err := ParseRuleSet([]byte(sampleRuleSet))
	require.NoError(t, err)

	assert.Equal(t, "2024.1", rs.Version)
	assert.Equal(t, []string{"^resp_"}, rs.ExcludePatterns)
	assert.Equal(t, "identificacao", rs.Renames.Forms["dados_demograficos"])
	assert.True(t, rs.FilterToCompleteOr(false))
	require.Len(t, rs.Rules, 5)
	assert.Equal(t, RuleCrossFormMatch, rs.Rules[3].Kind)
}

func TestParseRuleSet_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "未知类型", doc: "rules:\n  - name: x\n    kind: regex\n"},
		{name: "缺少参数", doc: "rules:\n  - name: x\n    kind: checksum_cpf\n    params:\n      form: identificacao\n"},
		{name: "未知参数", doc: "rules:\n  - name: x\n    kind: required_fields\n    params:\n      level: 3\n"},
		{name: "参数类型错误", doc: "rules:\n  - name: x\n    kind: cross_form_match\n    params:\n      source_form: a\n      source_column: b\n      target_form: c\n      target_column: d\n      reason: r\n      part: first\n"},
		{name: "缺少名称", doc: "rules:\n  - kind: required_fields\n"},
		{name: "名称重复", doc: "rules:\n  - name: x\n    kind: required_fields\n  - name: x\n    kind: required_fields\n"},
		{name: "YAML格式错误", doc: "rules: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRuleSet([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRuleSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRuleSet), 0o644))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Len(t, rs.Rules, 5)

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRuleSet_BuildRegistry(t *testing.T) {
	rs, err := ParseRuleSet([]byte(sampleRuleSet))
	require.NoError(t, err)

	codebook := []models.FieldMetadata{
		{FieldName: "cpf", FormName: "dados_demograficos", FieldType: "text", RequiredField: "y"},
		{FieldName: "resp_nome", FormName: "dados_demograficos", FieldType: "text", RequiredField: "y"},
		{FieldName: "febre", FormName: "ss_1", FieldType: "text", ValidationType: "integer"},
	}
	spec, err := BuildValidationSpec(codebook, rs.BuilderOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "v1", spec.RenameVersion)
	assert.Equal(t, []string{"identificacao", "sintomas"}, spec.FormNames())

	forms := map[string]*models.Form{"identificacao": identificacaoForm()}
	registry, err := rs.BuildRegistry(spec, forms, NewBranchingEvaluator())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"check_invalid_cpf",
		"check_invalid_cns",
		"check_missing_cpf",
		"diag_cid_equals_comorb_cid",
		"required:cpf",
	}, registry.Names())
}

func TestRuleSet_FilterToCompleteFallback(t *testing.T) {
	rs, err := ParseRuleSet([]byte("version: x\n"))
	require.NoError(t, err)
	assert.True(t, rs.FilterToCompleteOr(true))
	assert.False(t, rs.FilterToCompleteOr(false))
	assert.Empty(t, rs.BuilderOptions())
}

func TestRuleKinds(t *testing.T) {
	assert.Equal(t, []string{"checksum_cns", "checksum_cpf", "cross_form_match", "missing_value", "required_fields"}, RuleKinds())
}

func TestDefaultRuleSet(t *testing.T) {
	rs := DefaultRuleSet()
	require.NoError(t, rs.Validate())
	assert.Empty(t, rs.BuilderOptions())

	spec, err := BuildValidationSpec([]models.FieldMetadata{
		{FieldName: "cpf", FormName: "identificacao", FieldType: "text", RequiredField: "y"},
	})
	require.NoError(t, err)
	registry, err := rs.BuildRegistry(spec, map[string]*models.Form{"identificacao": identificacaoForm()}, NewBranchingEvaluator())
	require.NoError(t, err)
	assert.Equal(t, []string{"required:cpf"}, registry.Names())
}
