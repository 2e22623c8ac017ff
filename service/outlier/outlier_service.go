/*
 * @module service/outlier/outlier_service
 * @description 异常检测编排服务：加载项目、构建规格与规则、执行校验、保存结果、输出报告与通知
 * @architecture 分层架构 - 业务服务层
 * @stateFlow StartRun -> 加载项目 -> 构建规格 -> 重命名表单 -> 注册规则 -> Validate
 *            -> CSV 报告 -> CompleteRun -> 指标/通知；任一步失败 -> FailRun -> 指标/通知
 * @rules 同一服务实例同一时间只执行一次项目运行；内联校验不落库；通知失败不影响运行结果
 * @dependencies service/datasource, service/validation, service/report, service/monitoring
 * @refs service/init.go, api/controllers/outlier_controller.go, service/scheduler/outlier_scheduler.go
 */

package outlier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"redcap-outlier-service/service/datasource"
	"redcap-outlier-service/service/models"
	"redcap-outlier-service/service/monitoring"
	"redcap-outlier-service/service/report"
	"redcap-outlier-service/service/validation"
)

// 触发方式
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"

	sourceInline = "inline"
)

// ErrRunInProgress 已有运行在执行
var ErrRunInProgress = errors.New("已有异常检测运行正在执行")

// Options 服务参数
type Options struct {
	ProjectID        string
	FilterToComplete bool
	RuleSet          *validation.RuleSet
}

// Dependencies 服务依赖，Writer/Notifier/Metrics 可为空
type Dependencies struct {
	Loader   datasource.ProjectLoader
	Store    *report.ReportStore
	Writer   *report.CSVWriter
	Notifier *report.Notifier
	Metrics  *monitoring.MetricsCollector
}

// OutlierService 异常检测服务
type OutlierService struct {
	projectID        string
	filterToComplete bool
	ruleSet          *validation.RuleSet
	evaluator        *validation.BranchingEvaluator
	deps             Dependencies
	running          atomic.Bool
}

// NewOutlierService 创建异常检测服务
func NewOutlierService(opts Options, deps Dependencies) *OutlierService {
	ruleSet := opts.RuleSet
	if ruleSet == nil {
		ruleSet = validation.DefaultRuleSet()
	}
	return &OutlierService{
		projectID:        opts.ProjectID,
		filterToComplete: ruleSet.FilterToCompleteOr(opts.FilterToComplete),
		ruleSet:          ruleSet,
		evaluator:        validation.NewBranchingEvaluator(),
		deps:             deps,
	}
}

// ProjectID 项目标识
func (s *OutlierService) ProjectID() string {
	return s.projectID
}

// RuleSet 当前生效的规则集
func (s *OutlierService) RuleSet() *validation.RuleSet {
	return s.ruleSet
}

// Loader 项目加载器
func (s *OutlierService) Loader() datasource.ProjectLoader {
	return s.deps.Loader
}

// IsRunning 是否有运行在执行
func (s *OutlierService) IsRunning() bool {
	return s.running.Load()
}

// RunProject 对配置的项目执行一次完整的异常检测
// 返回的运行记录在失败时同样有效，状态为 failed
func (s *OutlierService) RunProject(ctx context.Context, trigger string) (*models.OutlierRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	run, err := s.deps.Store.StartRun(s.projectID, s.deps.Loader.GetType(), trigger, s.filterToComplete)
	if err != nil {
		return nil, err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunStarted()
	}
	slog.Info("异常检测运行开始", "run_id", run.ID, "project", s.projectID, "trigger", trigger)

	result, runErr := s.execute(ctx)
	if runErr == nil {
		runErr = s.deps.Store.CompleteRun(run, result)
	}

	if runErr != nil {
		if err := s.deps.Store.FailRun(run, runErr); err != nil {
			slog.Error("标记运行失败时出错", "run_id", run.ID, "error", err)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.RunFailed(s.projectID, trigger, time.Since(run.StartedAt))
		}
		slog.Error("异常检测运行失败", "run_id", run.ID, "error", runErr)
		s.notify(ctx, run)
		return run, runErr
	}

	run.Summary = report.SummaryFromTable(result.Table)
	if s.deps.Metrics != nil {
		byForm := make(map[string]int)
		for _, formName := range result.Table.FormNames() {
			byForm[formName] = len(result.Table.ByForm(formName))
		}
		s.deps.Metrics.RunSucceeded(s.projectID, trigger, time.Since(run.StartedAt), byForm)
	}
	slog.Info("异常检测运行完成", "run_id", run.ID, "outliers", run.TotalOutliers, "report", run.ReportPath)
	s.notify(ctx, run)
	return run, nil
}

// execute 加载、校验并输出报告
func (s *OutlierService) execute(ctx context.Context) (*report.RunResult, error) {
	project, err := datasource.LoadProject(ctx, s.deps.Loader)
	if err != nil {
		return nil, err
	}

	table, ruleNames, err := s.evaluate(project.Codebook, project.Forms, s.ruleSet, s.filterToComplete)
	if err != nil {
		return nil, err
	}

	result := &report.RunResult{Table: table, RuleNames: ruleNames}
	if s.deps.Writer != nil {
		path, err := s.deps.Writer.Write(table)
		if err != nil {
			return nil, err
		}
		result.ReportPath = path
	}
	return result, nil
}

// evaluate 由字典与表单得到异常结果表
func (s *OutlierService) evaluate(codebook []models.FieldMetadata, forms map[string]*models.Form, ruleSet *validation.RuleSet, filterToComplete bool) (*validation.OutlierTable, []string, error) {
	spec, err := validation.BuildValidationSpec(codebook, ruleSet.BuilderOptions()...)
	if err != nil {
		return nil, nil, err
	}

	forms = ruleSet.Renames.ApplyToForms(forms)

	registry, err := ruleSet.BuildRegistry(spec, forms, s.evaluator)
	if err != nil {
		return nil, nil, fmt.Errorf("构建自定义规则失败: %w", err)
	}

	table, err := validation.Validate(spec, forms, registry, filterToComplete)
	if err != nil {
		return nil, nil, err
	}
	return table, registry.Names(), nil
}

// InlineRequest 内联校验请求：调用方直接提供字典与表单
type InlineRequest struct {
	Codebook         []models.FieldMetadata  `json:"codebook"`
	Forms            map[string]*models.Form `json:"forms"`
	RuleSet          *validation.RuleSet     `json:"rule_set,omitempty"`
	FilterToComplete *bool                   `json:"filter_to_complete,omitempty"`
}

// InlineResult 内联校验结果
type InlineResult struct {
	Total     int                    `json:"total"`
	RuleNames []string               `json:"rule_names"`
	Summary   models.JSONB           `json:"summary"`
	Records   []models.OutlierRecord `json:"records"`
}

// ValidateInline 校验请求中携带的数据，不落库也不写报告
func (s *OutlierService) ValidateInline(req *InlineRequest) (*InlineResult, error) {
	if len(req.Codebook) == 0 {
		return nil, fmt.Errorf("%w: 字典不能为空", validation.ErrSchemaMalformed)
	}

	ruleSet := s.ruleSet
	if req.RuleSet != nil {
		if err := req.RuleSet.Validate(); err != nil {
			return nil, err
		}
		ruleSet = req.RuleSet
	}
	filter := s.filterToComplete
	if req.FilterToComplete != nil {
		filter = *req.FilterToComplete
	}

	forms := make(map[string]*models.Form, len(req.Forms))
	for name, form := range req.Forms {
		if form == nil {
			continue
		}
		formName := form.Name
		if formName == "" {
			formName = name
		}
		// 请求体可能省略 columns，按行重建列清单
		forms[name] = form.Clone(formName)
	}

	table, ruleNames, err := s.evaluate(req.Codebook, forms, ruleSet, filter)
	if err != nil {
		return nil, err
	}

	slog.Info("内联校验完成", "source", sourceInline, "forms", len(forms), "outliers", table.Len())
	return &InlineResult{
		Total:     table.Len(),
		RuleNames: ruleNames,
		Summary:   report.SummaryFromTable(table),
		Records:   table.Records,
	}, nil
}

// GetRun 获取运行记录
func (s *OutlierService) GetRun(id string) (*models.OutlierRun, error) {
	return s.deps.Store.GetRun(id)
}

// ListRuns 分页查询本项目的运行记录
func (s *OutlierService) ListRuns(page, pageSize int, status string) ([]models.OutlierRun, int64, error) {
	return s.deps.Store.ListRuns(page, pageSize, s.projectID, status)
}

// ListEntries 分页查询运行的异常明细
func (s *OutlierService) ListEntries(runID string, filter report.EntryFilter, page, pageSize int) ([]models.OutlierEntry, int64, error) {
	if _, err := s.deps.Store.GetRun(runID); err != nil {
		return nil, 0, err
	}
	return s.deps.Store.ListEntries(runID, filter, page, pageSize)
}

func (s *OutlierService) notify(ctx context.Context, run *models.OutlierRun) {
	if !s.deps.Notifier.Enabled() {
		return
	}
	// 运行上下文可能已取消
	notifyCtx := context.WithoutCancel(ctx)
	if err := s.deps.Notifier.Notify(notifyCtx, report.EventFromRun(run)); err != nil {
		slog.Warn("运行通知未全部送达", "run_id", run.ID, "error", err)
	}
}
