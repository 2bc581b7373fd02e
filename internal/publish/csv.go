// CSV 落盘：每数据集一个文件，列为 (h3_index, category, label, value)
package publish

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"hexstats/internal/lookup"
)

// WriteCSV：把输出行写为 CSV 文件
// 约束：占比按最短往返表示写出，避免精度噪声；行序由调用方保证（聚合端已排序）
func WriteCSV(path string, rows []lookup.OutputRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"h3_index", "category", "label", "value"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.CellKey,
			strconv.FormatInt(int64(r.Code), 10),
			r.Label,
			strconv.FormatFloat(r.Fraction, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("publish: write csv %s: %w", path, err)
	}
	return nil
}

// ReadCSV：读回输出文件（测试与校验用）
func ReadCSV(path string) ([]lookup.OutputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var rows []lookup.OutputRow
	for i, rec := range recs {
		if i == 0 || len(rec) < 4 {
			continue
		}
		code, err := strconv.ParseInt(rec[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("publish: %s line %d: %w", path, i+1, err)
		}
		frac, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("publish: %s line %d: %w", path, i+1, err)
		}
		rows = append(rows, lookup.OutputRow{CellKey: rec[0], Code: int32(code), Label: rec[2], Fraction: frac})
	}
	return rows, nil
}
