/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试数据库、数据工厂、表单样例与HTTP辅助
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"redcap-outlier-service/service/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.OutlierRun{},
		&models.OutlierEntry{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"outlier_entries",
		"outlier_runs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// OutlierRunOption 运行记录选项函数类型
type OutlierRunOption func(*models.OutlierRun)

// CreateOutlierRun 创建测试运行记录
func (f *TestDataFactory) CreateOutlierRun(opts ...OutlierRunOption) *models.OutlierRun {
	now := time.Now()
	run := &models.OutlierRun{
		ID:               generateID("run"),
		ProjectID:        "test_project",
		Source:           "redcap",
		Trigger:          "manual",
		Status:           models.RunStatusSuccess,
		FilterToComplete: true,
		Summary:          models.JSONB{},
		StartedAt:        now,
		FinishedAt:       &now,
	}

	// 应用选项
	for _, opt := range opts {
		opt(run)
	}

	err := f.DB.Create(run).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test outlier run: %v", err))
	}

	return run
}

// OutlierEntryOption 异常明细选项函数类型
type OutlierEntryOption func(*models.OutlierEntry)

// CreateOutlierEntry 创建测试异常明细
func (f *TestDataFactory) CreateOutlierEntry(runID string, opts ...OutlierEntryOption) *models.OutlierEntry {
	value := "150"
	entry := &models.OutlierEntry{
		ID:           generateID("oe"),
		RunID:        runID,
		RecordID:     "1",
		FormName:     "patients",
		FieldName:    "age",
		CurrentValue: &value,
		FormStatus:   models.StatusComplete,
		Reason:       "value outside permitted range (max: 120)",
	}

	// 应用选项
	for _, opt := range opts {
		opt(entry)
	}

	err := f.DB.Create(entry).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test outlier entry: %v", err))
	}

	return entry
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// PatientsCodebook 样例字典：age(integer 0..120)、visit_date(date_ymd)
func PatientsCodebook() []models.FieldMetadata {
	return []models.FieldMetadata{
		{FieldName: "record_id", FormName: "patients", FieldType: "text"},
		{FieldName: "age", FormName: "patients", FieldType: "text", ValidationType: "integer", ValidationMin: "0", ValidationMax: "120"},
		{FieldName: "visit_date", FormName: "patients", FieldType: "text", ValidationType: "date_ymd"},
	}
}

// PatientsForm 样例表单：记录 1 年龄越界，记录 2 日期无法解析
func PatientsForm() *models.Form {
	form := models.NewForm("patients", []string{
		models.ColumnRecordID, models.ColumnDataAccessGroup, "age", "visit_date", "patients_complete",
	})
	form.AddRow(map[string]interface{}{
		models.ColumnRecordID: "1", models.ColumnDataAccessGroup: "hospital_a",
		"age": "150", "visit_date": "2024-01-01", "patients_complete": "2",
	})
	form.AddRow(map[string]interface{}{
		models.ColumnRecordID: "2", models.ColumnDataAccessGroup: "hospital_a",
		"age": "40", "visit_date": "not-a-date", "patients_complete": "0",
	})
	return form
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// DecodeJSONResponse 断言状态码并解析响应体
func (h *HTTPTestHelper) DecodeJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, out interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())
	if out != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}
