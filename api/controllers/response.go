/*
 * @module api/controllers/response
 * @description 统一响应结构与构造函数
 * @architecture MVC架构 - 控制器层
 * @stateFlow 控制器处理结果 -> APIResponse -> render.JSON
 * @rules status 为 0 表示成功，非 0 时与 HTTP 状态码一致；错误详情附加在 msg 之后
 * @dependencies github.com/go-chi/render
 * @refs outlier_controller.go, health_controller.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// Render 写入 HTTP 状态码
func (resp *APIResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if resp.Status != 0 {
		render.Status(r, resp.Status)
	}
	return nil
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

// ErrorResponse 错误响应
func ErrorResponse(status int, msg string, err error) *APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &APIResponse{Status: status, Msg: msg}
}

// BadRequestResponse 400
func BadRequestResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 404
func NotFoundResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusNotFound, msg, err)
}

// ConflictResponse 409
func ConflictResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusConflict, msg, err)
}

// InternalErrorResponse 500
func InternalErrorResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusInternalServerError, msg, err)
}

// ServiceUnavailableResponse 503
func ServiceUnavailableResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusServiceUnavailable, Msg: msg, Data: data}
}

// NewPaginatedResponse 分页成功响应
func NewPaginatedResponse(msg string, data interface{}, total int64, page, size int) *PaginatedResponse {
	return &PaginatedResponse{Status: 0, Msg: msg, Data: data, Total: total, Page: page, Size: size}
}

// respond 写入状态码并输出 JSON
func respond(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	_ = resp.Render(w, r)
	render.JSON(w, r, resp)
}
