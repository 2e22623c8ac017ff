/*
 * @module service/report/report_store
 * @description 校验运行记录与异常明细的持久化
 * @architecture 分层架构 - 数据访问层
 * @stateFlow StartRun(running) -> CompleteRun(success, 写入明细) / FailRun(failed)
 * @rules 明细与运行状态在同一事务内写入；分页页码从 1 开始；列表按开始时间倒序
 * @dependencies gorm.io/gorm, github.com/lib/pq
 * @refs service/models/outlier.go, service/outlier/outlier_service.go
 */

package report

import (
	"errors"
	"fmt"
	"time"

	"redcap-outlier-service/service/models"
	"redcap-outlier-service/service/validation"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const entryBatchSize = 500

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("运行记录不存在")

// EntryFilter 异常明细查询条件，空字段表示不过滤
type EntryFilter struct {
	FormName  string
	FieldName string
	RecordID  string
	Reason    string
}

// RunResult 一次成功运行的结果
type RunResult struct {
	Table      *validation.OutlierTable
	RuleNames  []string
	ReportPath string
}

// ReportStore 运行记录存储
type ReportStore struct {
	db *gorm.DB
}

// NewReportStore 创建运行记录存储
func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

// StartRun 登记一次新的运行
func (s *ReportStore) StartRun(projectID, source, trigger string, filterToComplete bool) (*models.OutlierRun, error) {
	run := &models.OutlierRun{
		ProjectID:        projectID,
		Source:           source,
		Trigger:          trigger,
		Status:           models.RunStatusRunning,
		FilterToComplete: filterToComplete,
		Summary:          models.JSONB{},
		StartedAt:        time.Now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建运行记录失败: %w", err)
	}
	return run, nil
}

// CompleteRun 写入异常明细并将运行标记为成功
func (s *ReportStore) CompleteRun(run *models.OutlierRun, result *RunResult) error {
	finished := time.Now()
	entries := EntriesFromTable(run.ID, result.Table)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, entryBatchSize).Error; err != nil {
				return fmt.Errorf("写入异常明细失败: %w", err)
			}
		}

		updates := map[string]interface{}{
			"status":         models.RunStatusSuccess,
			"form_names":     pq.StringArray(result.Table.FormNames()),
			"rule_names":     pq.StringArray(result.RuleNames),
			"total_outliers": int64(result.Table.Len()),
			"summary":        SummaryFromTable(result.Table),
			"report_path":    result.ReportPath,
			"finished_at":    finished,
			"duration":       finished.Sub(run.StartedAt).Milliseconds(),
		}
		if err := tx.Model(&models.OutlierRun{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新运行记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	run.Status = models.RunStatusSuccess
	run.TotalOutliers = int64(result.Table.Len())
	run.ReportPath = result.ReportPath
	run.FinishedAt = &finished
	run.Duration = finished.Sub(run.StartedAt).Milliseconds()
	return nil
}

// FailRun 将运行标记为失败并记录错误
func (s *ReportStore) FailRun(run *models.OutlierRun, runErr error) error {
	finished := time.Now()
	updates := map[string]interface{}{
		"status":        models.RunStatusFailed,
		"error_message": runErr.Error(),
		"finished_at":   finished,
		"duration":      finished.Sub(run.StartedAt).Milliseconds(),
	}
	if err := s.db.Model(&models.OutlierRun{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新运行记录失败: %w", err)
	}

	run.Status = models.RunStatusFailed
	run.ErrorMessage = runErr.Error()
	run.FinishedAt = &finished
	return nil
}

// GetRun 按ID获取运行记录
func (s *ReportStore) GetRun(id string) (*models.OutlierRun, error) {
	var run models.OutlierRun
	if err := s.db.Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return &run, nil
}

// ListRuns 分页查询运行记录
func (s *ReportStore) ListRuns(page, pageSize int, projectID, status string) ([]models.OutlierRun, int64, error) {
	var runs []models.OutlierRun
	var total int64

	query := s.db.Model(&models.OutlierRun{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("started_at DESC").
		Offset(offset).Limit(pageSize).Find(&runs).Error

	return runs, total, err
}

// ListEntries 分页查询某次运行的异常明细，保持写入顺序
func (s *ReportStore) ListEntries(runID string, filter EntryFilter, page, pageSize int) ([]models.OutlierEntry, int64, error) {
	var entries []models.OutlierEntry
	var total int64

	query := s.db.Model(&models.OutlierEntry{}).Where("run_id = ?", runID)
	if filter.FormName != "" {
		query = query.Where("form_name = ?", filter.FormName)
	}
	if filter.FieldName != "" {
		query = query.Where("field_name = ?", filter.FieldName)
	}
	if filter.RecordID != "" {
		query = query.Where("record_id = ?", filter.RecordID)
	}
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("seq ASC").
		Offset(offset).Limit(pageSize).Find(&entries).Error

	return entries, total, err
}

// EntriesFromTable 将结果表转换为持久化明细
func EntriesFromTable(runID string, table *validation.OutlierTable) []models.OutlierEntry {
	entries := make([]models.OutlierEntry, 0, table.Len())
	for i, r := range table.Records {
		var current *string
		if !models.IsNull(r.CurrentValue) {
			value := models.CellString(r.CurrentValue)
			current = &value
		}
		entries = append(entries, models.OutlierEntry{
			RunID:           runID,
			Seq:             i,
			RecordID:        r.RecordID,
			DataAccessGroup: r.DataAccessGroup,
			FormName:        r.FormName,
			Instance:        r.Instance,
			FieldName:       r.FieldName,
			CurrentValue:    current,
			FormStatus:      r.FormStatus,
			Reason:          r.Reason,
		})
	}
	return entries
}

// SummaryFromTable 按原因与表单统计异常数量
func SummaryFromTable(table *validation.OutlierTable) models.JSONB {
	byReason := make(map[string]interface{})
	for reason, count := range table.CountByReason() {
		byReason[reason] = count
	}
	byForm := make(map[string]interface{})
	for _, formName := range table.FormNames() {
		byForm[formName] = len(table.ByForm(formName))
	}
	return models.JSONB{
		"by_reason": byReason,
		"by_form":   byForm,
		"total":     table.Len(),
	}
}
