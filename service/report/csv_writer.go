/*
 * @module service/report/csv_writer
 * @description 按日期命名的异常报告 CSV 输出
 * @architecture 分层架构 - 输出适配层
 * @stateFlow 结果表 -> 临时文件 -> 重命名为 outliers_<dd_mm_YYYY>.csv
 * @rules 同一天多次运行覆盖同名文件；表头为固定列顺序；不输出行索引；空值输出为空串
 * @dependencies encoding/csv
 * @refs service/validation/accumulator.go
 */

package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"redcap-outlier-service/service/validation"
)

// ReportFileName 返回指定日期的报告文件名
func ReportFileName(date time.Time) string {
	return fmt.Sprintf("outliers_%s.csv", date.Format("02_01_2006"))
}

// CSVWriter 报告写入器
type CSVWriter struct {
	dir string
	now func() time.Time
}

// NewCSVWriter 创建报告写入器
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir, now: time.Now}
}

// Write 写入报告并返回文件路径
func (w *CSVWriter) Write(table *validation.OutlierTable) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(w.dir, ReportFileName(w.now()))
	tmp, err := os.CreateTemp(w.dir, ".outliers-*.csv")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(table.Columns()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入表头失败: %w", err)
	}
	if err := writer.WriteAll(table.StringRows()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入报告失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("保存报告失败: %w", err)
	}
	return path, nil
}
