// 包 lookup：类别码查找表与百分比归一化
// 背景：聚合产出的是原始像元计数，发布前需换算为单元内占比，并把数值类别码
// 连接到人类可读标签
// 约束：查找表取前两列（码, 标签），多余列忽略；未命中的类别码保留空标签而非丢行
package lookup

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"hexstats/internal/logger"
	"hexstats/internal/metrics"
	"hexstats/internal/zonal"
)

// Row：查找表的一行（类别码 → 标签）
type Row struct {
	Code  int32
	Label string
}

// Table：码到标签的查找表，保序存储以便校验重复键
type Table struct {
	Rows []Row
}

// LoadCSV：读取查找表
// 约束：首行视为表头跳过；首列无法解析为整数码的行记日志后跳过
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil { // 表头
		if err == io.EOF {
			return nil, fmt.Errorf("lookup: %s: empty file", path)
		}
		return nil, fmt.Errorf("lookup: %s: read header: %w", path, err)
	}

	t := &Table{}
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("lookup: %s: line %d: %w", path, line, err)
		}
		if len(rec) < 2 {
			continue
		}
		code, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 32)
		if err != nil {
			logger.L().Warn("lookup_row_skipped", "file", path, "line", line, "value", rec[0])
			continue
		}
		t.Rows = append(t.Rows, Row{Code: int32(code), Label: rec[1]})
	}
	return t, nil
}

// Validate：拒绝重复键
// 背景：查找表键不唯一会导致连接时行数倍增；发布前显式校验而不是默默放大
func (t *Table) Validate() error {
	seen := make(map[int32]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		if _, dup := seen[r.Code]; dup {
			return fmt.Errorf("lookup: duplicate code %d", r.Code)
		}
		seen[r.Code] = struct{}{}
	}
	return nil
}

// index：码 → 标签映射；重复键时保留首个（与非严格模式的连接语义一致）
func (t *Table) index() map[int32]string {
	m := make(map[int32]string, len(t.Rows))
	for _, r := range t.Rows {
		if _, ok := m[r.Code]; !ok {
			m[r.Code] = r.Label
		}
	}
	return m
}

// OutputRow：可发布的终端行
type OutputRow struct {
	CellKey  string
	Code     int32
	Label    string
	Fraction float64
}

// Normalize：把每个单元的类别计数换算为占比并连接标签
// 约束：单元内占比之和为 1；计数总和为零的单元占比全为 0（受保护的除法）；
// 未命中查找表的码保留空标签并记录一次连接告警
func Normalize(counts []zonal.CategoryCount, t *Table) []OutputRow {
	labels := map[int32]string{}
	if t != nil {
		labels = t.index()
	}

	totals := make(map[string]float64)
	perCell := make(map[string][]float64)
	for _, c := range counts {
		perCell[c.CellKey] = append(perCell[c.CellKey], float64(c.Count))
	}
	for key, vals := range perCell {
		totals[key] = floats.Sum(vals)
	}

	out := make([]OutputRow, 0, len(counts))
	for _, c := range counts {
		frac := 0.0
		if tot := totals[c.CellKey]; tot > 0 {
			frac = float64(c.Count) / tot
		}
		label, ok := labels[c.Code]
		if !ok {
			// 静默部分连接是显式策略：保留行、空标签、留痕
			logger.L().Warn("lookup_join_miss", "cell", c.CellKey, "code", c.Code)
			metrics.LookupMissTotal.Inc()
		}
		out = append(out, OutputRow{CellKey: c.CellKey, Code: c.Code, Label: label, Fraction: frac})
	}
	return out
}
