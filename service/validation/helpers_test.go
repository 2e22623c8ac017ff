package validation

import (
	"redcap-outlier-service/service/models"
)

// textField 构造一个 text 类型的字典行
func textField(form, name, validationType, min, max string) models.FieldMetadata {
	return models.FieldMetadata{
		FieldName:      name,
		FormName:       form,
		FieldType:      "text",
		ValidationType: validationType,
		ValidationMin:  min,
		ValidationMax:  max,
	}
}

// newForm 构造表单，列顺序按给定 columns
func newForm(name string, columns []string, rows ...map[string]interface{}) *models.Form {
	form := models.NewForm(name, columns)
	for _, row := range rows {
		form.AddRow(row)
	}
	return form
}

func intPtr(v int) *int {
	return &v
}

func patientsForm() *models.Form {
	return newForm("patients",
		[]string{"record_id", "redcap_data_access_group", "age", "visit_date", "patients_complete"},
		map[string]interface{}{"record_id": "1", "redcap_data_access_group": "site_a", "age": "150", "visit_date": "2024-01-01", "patients_complete": "2"},
		map[string]interface{}{"record_id": "2", "redcap_data_access_group": "site_a", "age": "40", "visit_date": "not-a-date", "patients_complete": "2"},
	)
}

func patientsCodebook() []models.FieldMetadata {
	return []models.FieldMetadata{
		textField("patients", "age", "integer", "0", "120"),
		textField("patients", "visit_date", "date_ymd", "", ""),
	}
}
