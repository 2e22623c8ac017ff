/*
 * @module service/models/codebook
 * @description 项目字典(codebook)模型，描述每个字段的类型、取值范围、必填与分支逻辑
 * @architecture 数据模型层
 * @stateFlow 元数据导出/文档库加载 -> FieldMetadata -> 校验规格构建
 * @rules 字段名在项目内唯一；取值范围为原始字符串，具体类型由校验子类型决定
 * @dependencies github.com/spf13/cast
 * @refs service/validation/spec_builder.go
 */

package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ErrSchemaMalformed 字典结构错误（缺少列、边界值无法解析等），属于配置错误而非数据异常
var ErrSchemaMalformed = errors.New("codebook结构错误")

// 字典列名
const (
	CodebookFieldName       = "field_name"
	CodebookFormName        = "form_name"
	CodebookFieldType       = "field_type"
	CodebookValidationType  = "text_validation_type_or_show_slider_number"
	CodebookValidationMin   = "text_validation_min"
	CodebookValidationMax   = "text_validation_max"
	CodebookRequiredField   = "required_field"
	CodebookBranchingLogic  = "branching_logic"
	CodebookIdentifier      = "identifier"
	CodebookFieldAnnotation = "field_annotation"
)

// CodebookColumns 字典必须包含的列
var CodebookColumns = []string{
	CodebookFieldName,
	CodebookFormName,
	CodebookFieldType,
	CodebookValidationType,
	CodebookValidationMin,
	CodebookValidationMax,
	CodebookRequiredField,
	CodebookBranchingLogic,
	CodebookIdentifier,
	CodebookFieldAnnotation,
}

// FieldMetadata 字典中的一行字段元数据
type FieldMetadata struct {
	FieldName       string `json:"field_name" bson:"field_name" yaml:"field_name"`
	FormName        string `json:"form_name" bson:"form_name" yaml:"form_name"`
	FieldType       string `json:"field_type" bson:"field_type" yaml:"field_type"`
	ValidationType  string `json:"text_validation_type_or_show_slider_number" bson:"text_validation_type_or_show_slider_number" yaml:"text_validation_type_or_show_slider_number"`
	ValidationMin   string `json:"text_validation_min" bson:"text_validation_min" yaml:"text_validation_min"`
	ValidationMax   string `json:"text_validation_max" bson:"text_validation_max" yaml:"text_validation_max"`
	RequiredField   string `json:"required_field" bson:"required_field" yaml:"required_field"`
	BranchingLogic  string `json:"branching_logic" bson:"branching_logic" yaml:"branching_logic"`
	Identifier      string `json:"identifier" bson:"identifier" yaml:"identifier"`
	FieldAnnotation string `json:"field_annotation" bson:"field_annotation" yaml:"field_annotation"`
}

// CodebookFromTable 将表格形式的字典转换为 FieldMetadata 列表
// 缺少任一必需列时返回 ErrSchemaMalformed
func CodebookFromTable(table *Form) ([]FieldMetadata, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: 字典为空", ErrSchemaMalformed)
	}

	var missing []string
	for _, column := range CodebookColumns {
		if !table.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少列 %s", ErrSchemaMalformed, strings.Join(missing, ", "))
	}

	codebook := make([]FieldMetadata, 0, len(table.Rows))
	for _, row := range table.Rows {
		codebook = append(codebook, FieldMetadata{
			FieldName:       cast.ToString(row[CodebookFieldName]),
			FormName:        cast.ToString(row[CodebookFormName]),
			FieldType:       cast.ToString(row[CodebookFieldType]),
			ValidationType:  cast.ToString(row[CodebookValidationType]),
			ValidationMin:   cast.ToString(row[CodebookValidationMin]),
			ValidationMax:   cast.ToString(row[CodebookValidationMax]),
			RequiredField:   cast.ToString(row[CodebookRequiredField]),
			BranchingLogic:  cast.ToString(row[CodebookBranchingLogic]),
			Identifier:      cast.ToString(row[CodebookIdentifier]),
			FieldAnnotation: cast.ToString(row[CodebookFieldAnnotation]),
		})
	}

	return codebook, nil
}

// FormNames 按字典出现顺序返回表单名（去重）
func FormNames(codebook []FieldMetadata) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, field := range codebook {
		if field.FormName == "" || seen[field.FormName] {
			continue
		}
		seen[field.FormName] = true
		names = append(names, field.FormName)
	}
	return names
}
