/*
 * @module service/report/report_test
 * @description 运行记录存储、CSV 报告与通知测试
 * @architecture 单元测试 - 内存 sqlite + 临时目录 + mock 发布者
 * @stateFlow 校验结果表 -> 存储/写文件/通知 -> 断言
 * @rules 覆盖成功与失败运行、分页过滤、报告文件名与内容、通知扇出与错误合并
 * @dependencies testing, testify, gorm sqlite
 * @refs report_store.go, csv_writer.go, notifier.go
 */

package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"redcap-outlier-service/service/models"
	"redcap-outlier-service/service/validation"
	"redcap-outlier-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func patientsTable(t *testing.T) *validation.OutlierTable {
	t.Helper()
	spec, err := validation.BuildValidationSpec(testutil.PatientsCodebook())
	require.NoError(t, err)
	table, err := validation.Validate(spec, map[string]*models.Form{"patients": testutil.PatientsForm()}, nil, false)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	return table
}

func TestReportStore_RunLifecycle(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	store := NewReportStore(tdb.DB)

	run, err := store.StartRun("covid", "redcap", "manual", true)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	table := patientsTable(t)
	require.NoError(t, store.CompleteRun(run, &RunResult{
		Table:      table,
		RuleNames:  []string{"check_invalid_cpf"},
		ReportPath: "/tmp/outliers_01_01_2024.csv",
	}))

	saved, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, saved.Status)
	assert.Equal(t, int64(2), saved.TotalOutliers)
	assert.Equal(t, []string{"patients"}, []string(saved.FormNames))
	assert.Equal(t, []string{"check_invalid_cpf"}, []string(saved.RuleNames))
	assert.NotNil(t, saved.FinishedAt)
	assert.EqualValues(t, 2, saved.Summary["total"])

	entries, total, err := store.ListEntries(run.ID, EntryFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "age", entries[0].FieldName)
	require.NotNil(t, entries[0].CurrentValue)
	assert.Equal(t, "150", *entries[0].CurrentValue)
	assert.Equal(t, "visit_date", entries[1].FieldName)

	filtered, total, err := store.ListEntries(run.ID, EntryFilter{FieldName: "visit_date"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "2", filtered[0].RecordID)
}

func TestReportStore_FailRun(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	store := NewReportStore(tdb.DB)

	run, err := store.StartRun("covid", "mongo", "schedule", false)
	require.NoError(t, err)
	require.NoError(t, store.FailRun(run, errors.New("codebook结构错误: 缺少列 field_name")))

	saved, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, saved.Status)
	assert.Contains(t, saved.ErrorMessage, "field_name")
	assert.Zero(t, saved.TotalOutliers)
}

func TestReportStore_GetRunNotFound(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	_, err := NewReportStore(tdb.DB).GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReportStore_ListRuns(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	base := time.Now()
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Minute)
		factory.CreateOutlierRun(func(r *models.OutlierRun) { r.StartedAt = started })
	}
	factory.CreateOutlierRun(func(r *models.OutlierRun) {
		r.ProjectID = "other"
		r.Status = models.RunStatusFailed
	})

	store := NewReportStore(tdb.DB)
	runs, total, err := store.ListRuns(1, 2, "test_project", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

	failed, total, err := store.ListRuns(1, 10, "", models.RunStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "other", failed[0].ProjectID)
}

func TestEntriesFromTable_NullValue(t *testing.T) {
	table := &validation.OutlierTable{Records: []models.OutlierRecord{
		{RecordID: "3", FormName: "identificacao", FieldName: "cpf", CurrentValue: nil, Reason: "required field is missing"},
	}}
	entries := EntriesFromTable("run-1", table)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].CurrentValue)
	assert.Equal(t, "run-1", entries[0].RunID)
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "outliers_05_02_2024.csv", ReportFileName(time.Date(2024, 2, 5, 10, 0, 0, 0, time.UTC)))
}

func TestCSVWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	writer := NewCSVWriter(dir)
	writer.now = func() time.Time { return time.Date(2024, 2, 5, 10, 0, 0, 0, time.UTC) }

	path, err := writer.Write(patientsTable(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "outliers_05_02_2024.csv"), path)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, models.OutlierColumns, rows[0])
	assert.Equal(t, []string{"1", "hospital_a", "patients", "", "age", "150", "complete", "value outside permitted range (max: 120)"}, rows[1])
	assert.Equal(t, "incomplete", rows[2][6])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// mockPublisher 可编程的发布者
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event RunEvent) error {
	return m.Called(event.RunID).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func (m *mockPublisher) Name() string {
	return "mock"
}

func TestNotifier_FanOut(t *testing.T) {
	ok := new(mockPublisher)
	ok.On("Publish", "run-1").Return(nil)
	ok.On("Close").Return(nil)
	broken := new(mockPublisher)
	broken.On("Publish", "run-1").Return(errors.New("broker down"))
	broken.On("Close").Return(nil)

	notifier := NewNotifier(ok, broken)
	assert.True(t, notifier.Enabled())

	err := notifier.Notify(context.Background(), RunEvent{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	require.NoError(t, notifier.Close())

	ok.AssertExpectations(t)
	broken.AssertExpectations(t)
}

func TestNotifier_Disabled(t *testing.T) {
	notifier := NewNotifier()
	assert.False(t, notifier.Enabled())
	assert.NoError(t, notifier.Notify(context.Background(), RunEvent{}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Notify(context.Background(), RunEvent{}))
	assert.NoError(t, nilNotifier.Close())
}

func TestEventFromRun(t *testing.T) {
	finished := time.Date(2024, 2, 5, 10, 0, 0, 0, time.UTC)
	event := EventFromRun(&models.OutlierRun{
		ID: "r", ProjectID: "p", Status: models.RunStatusSuccess, TotalOutliers: 4,
		Summary: models.JSONB{"total": 4}, FinishedAt: &finished,
	})
	assert.Equal(t, "p", event.ProjectID)
	assert.Equal(t, finished, event.FinishedAt)
	assert.EqualValues(t, 4, event.Summary["total"])
}
