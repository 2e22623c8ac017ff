/*
 * @module service/models/outlier
 * @description 异常记录模型，包括结果表行、校验运行记录与持久化的异常明细
 * @architecture 数据模型层
 * @stateFlow 校验运行 -> 异常结果表 -> 运行记录/异常明细入库
 * @rules 结果列顺序固定；状态编码 0/1/2 映射为 incomplete/unverified/complete
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/lib/pq
 * @refs service/validation/accumulator.go, service/report/report_store.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 表单状态标签
const (
	StatusIncomplete = "incomplete"
	StatusUnverified = "unverified"
	StatusComplete   = "complete"
)

// StatusLabels 状态编码到标签的映射
var StatusLabels = map[int]string{
	0: StatusIncomplete,
	1: StatusUnverified,
	2: StatusComplete,
}

// OutlierColumns 结果表固定列顺序
var OutlierColumns = []string{
	"record_id",
	"redcap_data_access_group",
	"form_name",
	"instance",
	"field_name",
	"current_value",
	"form_status",
	"reason",
}

// OutlierRecord 异常记录（结果表的一行）
type OutlierRecord struct {
	RecordID        string      `json:"record_id"`
	DataAccessGroup string      `json:"redcap_data_access_group"`
	FormName        string      `json:"form_name"`
	Instance        *int        `json:"instance"`
	FieldName       string      `json:"field_name"`
	CurrentValue    interface{} `json:"current_value"`
	FormStatus      string      `json:"form_status"`
	Reason          string      `json:"reason"`
}

// 运行状态
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// OutlierRun 异常检测运行记录，表单名与规则名以 postgres 数组字面量存储
type OutlierRun struct {
	ID               string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	ProjectID        string         `gorm:"type:varchar(100);index" json:"project_id"`
	Source           string         `gorm:"type:varchar(20);not null" json:"source"`  // redcap, mongo, inline
	Trigger          string         `gorm:"type:varchar(20);not null" json:"trigger"` // manual, schedule, api
	Status           string         `gorm:"type:varchar(20);not null;index" json:"status"`
	FilterToComplete bool           `json:"filter_to_complete"`
	FormNames        pq.StringArray `gorm:"type:text" json:"form_names"`
	RuleNames        pq.StringArray `gorm:"type:text" json:"rule_names"`
	TotalOutliers    int64          `json:"total_outliers"`
	Summary          JSONB          `gorm:"type:jsonb" json:"summary"` // 按原因统计
	ReportPath       string         `gorm:"type:varchar(500)" json:"report_path,omitempty"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	Duration         int64          `json:"duration"` // 毫秒
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (OutlierRun) TableName() string {
	return "outlier_runs"
}

// BeforeCreate 创建前钩子
func (r *OutlierRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// OutlierEntry 持久化的异常明细
type OutlierEntry struct {
	ID              string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID           string    `gorm:"type:varchar(50);not null;index" json:"run_id"`
	Seq             int       `gorm:"not null" json:"seq"` // 在结果表中的行号
	RecordID        string    `gorm:"type:varchar(100);not null;index" json:"record_id"`
	DataAccessGroup string    `gorm:"type:varchar(100)" json:"redcap_data_access_group"`
	FormName        string    `gorm:"type:varchar(100);not null;index" json:"form_name"`
	Instance        *int      `json:"instance"`
	FieldName       string    `gorm:"type:varchar(100);not null;index" json:"field_name"`
	CurrentValue    *string   `gorm:"type:text" json:"current_value"`
	FormStatus      string    `gorm:"type:varchar(20)" json:"form_status"`
	Reason          string    `gorm:"type:text;not null" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName 指定表名
func (OutlierEntry) TableName() string {
	return "outlier_entries"
}

// BeforeCreate 创建前钩子
func (e *OutlierEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
