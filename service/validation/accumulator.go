/*
 * @module service/validation/accumulator
 * @description 异常累加器：汇总通用检查与自定义规则产生的异常，生成统一结果表
 * @architecture 调用方持有的累加器 - 每次运行创建一个，运行结束后 Finalize 一次
 * @stateFlow 空表 -> Record 追加(只追加) -> Finalize(状态映射/过滤) -> OutlierTable
 * @rules 记录键为 SimpleKey 或 InstancedKey；无法匹配的键不产生行；Finalize 只能调用一次
 * @dependencies github.com/spf13/cast
 * @refs rule_executor.go, custom_rules.go
 */

package validation

import (
	"errors"
	"fmt"
	"sort"

	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
)

var (
	// ErrFormMalformed 表单缺少必需列
	ErrFormMalformed = errors.New("表单结构错误")
	// ErrAlreadyFinalized 累加器已经完成
	ErrAlreadyFinalized = errors.New("异常累加器已完成")
)

// KeyKind 记录键类型
type KeyKind int

const (
	// KeySimple 仅按 record_id 匹配，命中该记录的全部实例
	KeySimple KeyKind = iota
	// KeyInstanced 按 record_id 与重复实例号匹配
	KeyInstanced
)

// RecordKey 异常记录键
type RecordKey struct {
	kind     KeyKind
	RecordID string
	Instance *int
}

// SimpleKey 创建按 record_id 匹配的键
func SimpleKey(recordID string) RecordKey {
	return RecordKey{kind: KeySimple, RecordID: recordID}
}

// InstancedKey 创建按 record_id 与实例号匹配的键，instance 为 nil 表示非重复行
func InstancedKey(recordID string, instance *int) RecordKey {
	return RecordKey{kind: KeyInstanced, RecordID: recordID, Instance: instance}
}

// Kind 返回键类型
func (k RecordKey) Kind() KeyKind {
	return k.kind
}

// String 返回键的可读形式
func (k RecordKey) String() string {
	if k.kind == KeySimple {
		return k.RecordID
	}
	if k.Instance == nil {
		return fmt.Sprintf("(%s, null)", k.RecordID)
	}
	return fmt.Sprintf("(%s, %d)", k.RecordID, *k.Instance)
}

type instanceKey struct {
	recordID string
	instance int
	null     bool
}

func toInstanceKey(recordID string, instance *int) instanceKey {
	if instance == nil {
		return instanceKey{recordID: recordID, null: true}
	}
	return instanceKey{recordID: recordID, instance: *instance}
}

type pendingRow struct {
	record    models.OutlierRecord
	statusRaw interface{}
}

// Accumulator 异常累加器，非并发安全，每次运行独占
type Accumulator struct {
	rows      []pendingRow
	finalized bool
}

// NewAccumulator 创建累加器
func NewAccumulator() *Accumulator {
	return &Accumulator{rows: make([]pendingRow, 0)}
}

// Len 已累积的行数
func (a *Accumulator) Len() int {
	return len(a.rows)
}

// Record 按记录键从表单中取出对应行并追加为异常
func (a *Accumulator) Record(form *models.Form, column, formName string, keys []RecordKey, reason string) error {
	if a.finalized {
		return ErrAlreadyFinalized
	}
	if len(keys) == 0 {
		return nil
	}

	statusColumn, err := checkForm(form, column)
	if err != nil {
		return fmt.Errorf("记录表单 %s 字段 %s 的异常失败: %w", formName, column, err)
	}

	simple := make(map[string]bool)
	instanced := make(map[instanceKey]bool)
	for _, key := range keys {
		if key.kind == KeySimple {
			simple[key.RecordID] = true
		} else {
			instanced[toInstanceKey(key.RecordID, key.Instance)] = true
		}
	}

	repeating := form.IsRepeating()
	for _, row := range form.Rows {
		recordID := models.RecordID(row)
		var instance *int
		if repeating {
			instance = models.Instance(row)
		}

		if !simple[recordID] && !instanced[toInstanceKey(recordID, instance)] {
			continue
		}

		a.rows = append(a.rows, pendingRow{
			record: models.OutlierRecord{
				RecordID:        recordID,
				DataAccessGroup: cast.ToString(row[models.ColumnDataAccessGroup]),
				FormName:        formName,
				Instance:        instance,
				FieldName:       column,
				CurrentValue:    row[column],
				Reason:          reason,
			},
			statusRaw: row[statusColumn],
		})
	}

	return nil
}

// checkForm 校验表单必需列，返回状态列名
func checkForm(form *models.Form, column string) (string, error) {
	if form == nil {
		return "", fmt.Errorf("%w: 表单为空", ErrFormMalformed)
	}
	for _, required := range []string{models.ColumnRecordID, models.ColumnDataAccessGroup, column} {
		if !form.HasColumn(required) {
			return "", fmt.Errorf("%w: 缺少列 %s", ErrFormMalformed, required)
		}
	}
	statusColumn, ok := form.CompleteColumn()
	if !ok {
		return "", fmt.Errorf("%w: 缺少 *%s 状态列", ErrFormMalformed, models.CompleteColumnSuffix)
	}
	return statusColumn, nil
}

// Finalize 映射状态标签并按需过滤，只能调用一次
func (a *Accumulator) Finalize(filterToComplete bool) (*OutlierTable, error) {
	if a.finalized {
		return nil, ErrAlreadyFinalized
	}
	a.finalized = true

	records := make([]models.OutlierRecord, 0, len(a.rows))
	for _, row := range a.rows {
		record := row.record
		record.FormStatus = statusLabel(row.statusRaw)
		if filterToComplete && record.FormStatus != models.StatusComplete {
			continue
		}
		records = append(records, record)
	}
	a.rows = nil

	return &OutlierTable{Records: records}, nil
}

// statusLabel 状态编码转换为标签，无法识别时保留原值
func statusLabel(raw interface{}) string {
	if models.IsNull(raw) {
		return ""
	}
	code, err := cast.ToIntE(raw)
	if err == nil {
		if label, ok := models.StatusLabels[code]; ok {
			return label
		}
	}
	return cast.ToString(raw)
}

// OutlierTable 异常结果表
type OutlierTable struct {
	Records []models.OutlierRecord `json:"records"`
}

// Columns 结果表列顺序
func (t *OutlierTable) Columns() []string {
	columns := make([]string, len(models.OutlierColumns))
	copy(columns, models.OutlierColumns)
	return columns
}

// Len 结果行数
func (t *OutlierTable) Len() int {
	return len(t.Records)
}

// ByForm 按表单筛选
func (t *OutlierTable) ByForm(formName string) []models.OutlierRecord {
	return t.filter(func(r models.OutlierRecord) bool { return r.FormName == formName })
}

// ByField 按字段筛选
func (t *OutlierTable) ByField(fieldName string) []models.OutlierRecord {
	return t.filter(func(r models.OutlierRecord) bool { return r.FieldName == fieldName })
}

// ByRecord 按记录筛选
func (t *OutlierTable) ByRecord(recordID string) []models.OutlierRecord {
	return t.filter(func(r models.OutlierRecord) bool { return r.RecordID == recordID })
}

func (t *OutlierTable) filter(match func(models.OutlierRecord) bool) []models.OutlierRecord {
	out := make([]models.OutlierRecord, 0)
	for _, r := range t.Records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// CountByReason 按原因统计行数
func (t *OutlierTable) CountByReason() map[string]int {
	counts := make(map[string]int)
	for _, r := range t.Records {
		counts[r.Reason]++
	}
	return counts
}

// FormNames 结果中出现的表单名（排序）
func (t *OutlierTable) FormNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, r := range t.Records {
		if !seen[r.FormName] {
			seen[r.FormName] = true
			names = append(names, r.FormName)
		}
	}
	sort.Strings(names)
	return names
}

// StringRows 按固定列顺序输出字符串行，空值输出为空字符串
func (t *OutlierTable) StringRows() [][]string {
	rows := make([][]string, 0, len(t.Records))
	for _, r := range t.Records {
		instance := ""
		if r.Instance != nil {
			instance = cast.ToString(*r.Instance)
		}
		current := models.CellString(r.CurrentValue)
		rows = append(rows, []string{
			r.RecordID,
			r.DataAccessGroup,
			r.FormName,
			instance,
			r.FieldName,
			current,
			r.FormStatus,
			r.Reason,
		})
	}
	return rows
}
