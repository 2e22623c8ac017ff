/*
 * @module api/controllers/outlier_controller
 * @description 异常检测控制器，提供内联校验、触发运行、运行记录与异常明细查询接口
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数解析 -> OutlierService -> 统一响应
 * @rules 内联校验的数据错误返回 400；已有运行在执行时返回 409；运行失败返回 500 并附带运行记录
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/outlier/outlier_service.go, api/routes.go
 */

package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"redcap-outlier-service/service/outlier"
	"redcap-outlier-service/service/report"
	"redcap-outlier-service/service/scheduler"
	"redcap-outlier-service/service/validation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// OutlierController 异常检测控制器
type OutlierController struct {
	service   *outlier.OutlierService
	scheduler *scheduler.OutlierScheduler
}

// NewOutlierController 创建异常检测控制器，scheduler 可为空
func NewOutlierController(svc *outlier.OutlierService, sched *scheduler.OutlierScheduler) *OutlierController {
	return &OutlierController{service: svc, scheduler: sched}
}

// RunFailedResponse 运行失败时的响应数据
type RunFailedResponse struct {
	Run   interface{} `json:"run"`
	Error string      `json:"error"`
}

// ScheduleResponse 调度状态
type ScheduleResponse struct {
	Enabled   bool       `json:"enabled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// ValidateInline 校验请求体中的字典与表单
// @Summary 内联校验
// @Tags 异常检测
// @Accept json
// @Produce json
// @Param request body outlier.InlineRequest true "字典、表单与可选规则集"
// @Success 200 {object} APIResponse{data=outlier.InlineResult}
// @Failure 400 {object} APIResponse
// @Router /outliers/validate [post]
func (c *OutlierController) ValidateInline(w http.ResponseWriter, r *http.Request) {
	var req outlier.InlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	result, err := c.service.ValidateInline(&req)
	if err != nil {
		respond(w, r, BadRequestResponse("校验失败", err))
		return
	}
	respond(w, r, SuccessResponse("校验完成", result))
}

// TriggerRun 立即对配置的项目执行一次检测
// @Summary 触发检测运行
// @Tags 异常检测
// @Produce json
// @Success 200 {object} APIResponse{data=models.OutlierRun}
// @Failure 409 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /outliers/runs [post]
func (c *OutlierController) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := c.service.RunProject(r.Context(), outlier.TriggerAPI)
	if errors.Is(err, outlier.ErrRunInProgress) {
		respond(w, r, ConflictResponse("检测运行未启动", err))
		return
	}
	if err != nil {
		if run == nil {
			respond(w, r, InternalErrorResponse("检测运行失败", err))
			return
		}
		respond(w, r, &APIResponse{
			Status: http.StatusInternalServerError,
			Msg:    "检测运行失败",
			Data:   RunFailedResponse{Run: run, Error: err.Error()},
		})
		return
	}
	respond(w, r, SuccessResponse("检测运行完成", run))
}

// ListRuns 分页查询运行记录
// @Summary 运行记录列表
// @Tags 异常检测
// @Produce json
// @Param page query int false "页码"
// @Param size query int false "每页数量"
// @Param status query string false "状态 running/success/failed"
// @Success 200 {object} PaginatedResponse
// @Router /outliers/runs [get]
func (c *OutlierController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, size := pagination(r)
	runs, total, err := c.service.ListRuns(page, size, r.URL.Query().Get("status"))
	if err != nil {
		respond(w, r, InternalErrorResponse("获取运行记录失败", err))
		return
	}
	render.JSON(w, r, NewPaginatedResponse("获取运行记录成功", runs, total, page, size))
}

// GetRun 获取单次运行记录
// @Summary 运行记录详情
// @Tags 异常检测
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.OutlierRun}
// @Failure 404 {object} APIResponse
// @Router /outliers/runs/{id} [get]
func (c *OutlierController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		respond(w, r, BadRequestResponse("运行ID不能为空", nil))
		return
	}

	run, err := c.service.GetRun(runID)
	if err != nil {
		c.storeError(w, r, "获取运行记录失败", err)
		return
	}
	respond(w, r, SuccessResponse("获取运行记录成功", run))
}

// ListEntries 分页查询运行的异常明细
// @Summary 异常明细
// @Tags 异常检测
// @Produce json
// @Param id path string true "运行ID"
// @Param form_name query string false "表单名"
// @Param field_name query string false "字段名"
// @Param record_id query string false "记录ID"
// @Param reason query string false "原因（模糊匹配）"
// @Success 200 {object} PaginatedResponse
// @Failure 404 {object} APIResponse
// @Router /outliers/runs/{id}/entries [get]
func (c *OutlierController) ListEntries(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		respond(w, r, BadRequestResponse("运行ID不能为空", nil))
		return
	}

	query := r.URL.Query()
	filter := report.EntryFilter{
		FormName:  query.Get("form_name"),
		FieldName: query.Get("field_name"),
		RecordID:  query.Get("record_id"),
		Reason:    query.Get("reason"),
	}
	page, size := pagination(r)

	entries, total, err := c.service.ListEntries(runID, filter, page, size)
	if err != nil {
		c.storeError(w, r, "获取异常明细失败", err)
		return
	}
	render.JSON(w, r, NewPaginatedResponse("获取异常明细成功", entries, total, page, size))
}

// GetRuleSet 当前生效的规则集
// @Summary 当前规则集
// @Tags 异常检测
// @Produce json
// @Success 200 {object} APIResponse{data=validation.RuleSet}
// @Router /outliers/ruleset [get]
func (c *OutlierController) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("获取规则集成功", c.service.RuleSet()))
}

// GetRuleKinds 支持的自定义规则类型
// @Summary 规则类型
// @Tags 异常检测
// @Produce json
// @Success 200 {object} APIResponse{data=[]string}
// @Router /outliers/rule-kinds [get]
func (c *OutlierController) GetRuleKinds(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("获取规则类型成功", validation.RuleKinds()))
}

// GetSchedule 定时调度状态
// @Summary 调度状态
// @Tags 异常检测
// @Produce json
// @Success 200 {object} APIResponse{data=ScheduleResponse}
// @Router /outliers/schedule [get]
func (c *OutlierController) GetSchedule(w http.ResponseWriter, r *http.Request) {
	response := ScheduleResponse{}
	if c.scheduler != nil {
		response.NextRun = c.scheduler.NextRun()
		response.Enabled = response.NextRun != nil
		lastRun, lastErr := c.scheduler.LastResult()
		if !lastRun.IsZero() {
			response.LastRun = &lastRun
		}
		if lastErr != nil {
			response.LastError = lastErr.Error()
		}
	}
	respond(w, r, SuccessResponse("获取调度状态成功", response))
}

func (c *OutlierController) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, report.ErrRunNotFound) {
		respond(w, r, NotFoundResponse(msg, err))
		return
	}
	respond(w, r, InternalErrorResponse(msg, err))
}

// pagination 解析 page/size，非法值使用默认值
func pagination(r *http.Request) (int, int) {
	page, size := 1, defaultPageSize
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 && s <= maxPageSize {
		size = s
	}
	return page, size
}
