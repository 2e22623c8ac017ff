/*
 * @module service/datasource/redcap_client
 * @description REDCap API 客户端，导出项目字典与扁平记录并拆分为各表单数据表
 * @architecture 简单HTTP客户端模式 - 每次调用 POST token+content 表单
 * @stateFlow POST metadata(json) -> 字典；POST record(csv, flat) -> 扁平表 -> SplitForms -> 表单集合
 * @rules 非 200 状态视为失败；响应不是合法 UTF-8 时按 ISO-8859-1 解码；空单元格视为空值；
 *        非重复表单取 redcap_repeat_instrument 为空的行，重复表单取等于表单名的行
 * @dependencies net/http, encoding/csv, golang.org/x/text/encoding/charmap
 * @refs loader.go, service/models/form.go
 */

package datasource

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/models"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	// ColumnEventName 纵向项目导出的事件列
	ColumnEventName = "redcap_event_name"

	fieldTypeDescriptive = "descriptive"
	maxErrorBody         = 512
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RedcapClient REDCap API 客户端
type RedcapClient struct {
	apiURL string
	token  string
	client *http.Client
}

// NewRedcapClient 创建 REDCap 客户端
func NewRedcapClient(cfg config.RedcapConfig) *RedcapClient {
	return &RedcapClient{
		apiURL: cfg.URL,
		token:  cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetType 数据来源类型
func (c *RedcapClient) GetType() string {
	return config.SourceRedcap
}

// call 发起一次 API 调用，返回响应体
func (c *RedcapClient) call(ctx context.Context, content string, params url.Values) ([]byte, error) {
	payload := url.Values{}
	payload.Set("token", c.token)
	payload.Set("content", content)
	for key, values := range params {
		for _, v := range values {
			payload.Add(key, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求REDCap失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	slog.Debug("REDCap API 调用", "content", content, "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("REDCap返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return body, nil
}

// HealthCheck 通过导出 REDCap 版本号检查连通性
func (c *RedcapClient) HealthCheck(ctx context.Context) error {
	_, err := c.call(ctx, "version", nil)
	return err
}

// Close 无需释放资源
func (c *RedcapClient) Close(ctx context.Context) error {
	return nil
}

// ExportMetadata 导出项目字典
func (c *RedcapClient) ExportMetadata(ctx context.Context) ([]models.FieldMetadata, error) {
	body, err := c.call(ctx, "metadata", url.Values{"format": {"json"}})
	if err != nil {
		return nil, err
	}

	var codebook []models.FieldMetadata
	if err := json.Unmarshal(body, &codebook); err != nil {
		return nil, fmt.Errorf("%w: 解析字典JSON失败: %v", models.ErrSchemaMalformed, err)
	}
	return codebook, nil
}

// ExportRecords 导出全部记录（扁平格式，包含数据访问组列）
func (c *RedcapClient) ExportRecords(ctx context.Context) (*models.Form, error) {
	body, err := c.call(ctx, "record", url.Values{
		"format":                 {"csv"},
		"type":                   {"flat"},
		"rawOrLabel":             {"raw"},
		"exportDataAccessGroups": {"true"},
	})
	if err != nil {
		return nil, err
	}
	return ParseCSV("records", body)
}

// LoadCodebook 实现 ProjectLoader
func (c *RedcapClient) LoadCodebook(ctx context.Context) ([]models.FieldMetadata, error) {
	return c.ExportMetadata(ctx)
}

// LoadForms 实现 ProjectLoader：导出扁平记录后按字典拆分
func (c *RedcapClient) LoadForms(ctx context.Context, codebook []models.FieldMetadata) (map[string]*models.Form, error) {
	records, err := c.ExportRecords(ctx)
	if err != nil {
		return nil, err
	}
	return SplitForms(records, codebook)
}

// decodeText 去掉 BOM，非 UTF-8 内容按 ISO-8859-1 转码
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("ISO-8859-1 解码失败: %w", err)
	}
	return decoded, nil
}

// ParseCSV 解析带表头的 CSV，空单元格记为 nil
func ParseCSV(name string, data []byte) (*models.Form, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(text))
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return models.NewForm(name, []string{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取CSV表头失败: %v", ErrExportMalformed, err)
	}

	form := models.NewForm(name, header)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: 读取CSV失败: %v", ErrExportMalformed, err)
		}

		row := make(map[string]interface{}, len(header))
		for i, column := range header {
			if record[i] == "" {
				row[column] = nil
				continue
			}
			row[column] = record[i]
		}
		form.Rows = append(form.Rows, row)
	}

	return form, nil
}

// fieldColumns 返回字段在扁平导出中对应的列（复选框展开为 field___code）
func fieldColumns(records *models.Form, field string) []string {
	if records.HasColumn(field) {
		return []string{field}
	}
	prefix := field + models.DefaultCheckboxSplitter
	var columns []string
	for _, column := range records.Columns {
		if strings.HasPrefix(column, prefix) {
			columns = append(columns, column)
		}
	}
	return columns
}

// SplitForms 将扁平导出按字典拆分为各表单数据表
// 每张表单包含 record_id、事件列、数据访问组、重复实例列（仅重复表单）、自身字段与 <form>_complete
func SplitForms(records *models.Form, codebook []models.FieldMetadata) (map[string]*models.Form, error) {
	if records == nil || !records.HasColumn(models.ColumnRecordID) {
		return nil, fmt.Errorf("%w: 缺少 %s 列", ErrExportMalformed, models.ColumnRecordID)
	}

	repeating := make(map[string]bool)
	if records.HasColumn(models.ColumnRepeatInstrument) {
		for _, row := range records.Rows {
			if instrument, ok := row[models.ColumnRepeatInstrument].(string); ok && instrument != "" {
				repeating[instrument] = true
			}
		}
	}

	fieldsByForm := make(map[string][]string)
	for _, field := range codebook {
		if field.FieldName == models.ColumnRecordID || field.FieldType == fieldTypeDescriptive {
			continue
		}
		fieldsByForm[field.FormName] = append(fieldsByForm[field.FormName], fieldColumns(records, field.FieldName)...)
	}

	forms := make(map[string]*models.Form)
	for _, formName := range models.FormNames(codebook) {
		columns := []string{models.ColumnRecordID}
		for _, reserved := range []string{ColumnEventName, models.ColumnDataAccessGroup} {
			if records.HasColumn(reserved) {
				columns = append(columns, reserved)
			}
		}
		if repeating[formName] {
			columns = append(columns, models.ColumnRepeatInstrument, models.ColumnRepeatInstance)
		}
		columns = append(columns, fieldsByForm[formName]...)
		if complete := formName + models.CompleteColumnSuffix; records.HasColumn(complete) {
			columns = append(columns, complete)
		}

		form := models.NewForm(formName, columns)
		for _, row := range records.Rows {
			instrument, _ := row[models.ColumnRepeatInstrument].(string)
			if repeating[formName] {
				if instrument != formName {
					continue
				}
			} else if instrument != "" {
				continue
			}

			subset := make(map[string]interface{}, len(columns))
			for _, column := range columns {
				subset[column] = row[column]
			}
			form.Rows = append(form.Rows, subset)
		}
		forms[formName] = form
	}

	slog.Debug("扁平记录拆分完成", "rows", len(records.Rows), "forms", len(forms), "repeating", len(repeating))
	return forms, nil
}
