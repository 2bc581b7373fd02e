// PostgreSQL 发布端：输出行入库，便于下游按单元或类别查询
package publish

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"hexstats/internal/logger"
	"hexstats/internal/lookup"
	"hexstats/internal/metrics"
)

// PGSink：库表发布端，复用进程级连接池
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink { return &PGSink{db: db} }

func (s *PGSink) Name() string { return "postgres" }

// EnsureSchema：首次运行自动创建所需表与索引
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _hex_category_shares (
            dataset TEXT NOT NULL,
            h3_index TEXT NOT NULL,
            category INT NOT NULL,
            label TEXT NOT NULL DEFAULT '',
            value DOUBLE PRECISION NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (dataset, h3_index, category)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_hex_shares_cell ON _hex_category_shares(h3_index)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Publish：单事务批量 upsert 一个数据集的全部行
// 背景：同一数据集重跑时覆盖旧值，保持 (dataset, 单元, 类别) 幂等
func (s *PGSink) Publish(ctx context.Context, dataset string, rows []lookup.OutputRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _hex_category_shares(dataset, h3_index, category, label, value)
        VALUES($1,$2,$3,$4,$5)
        ON CONFLICT (dataset, h3_index, category) DO UPDATE SET label=EXCLUDED.label, value=EXCLUDED.value, updated_at=now()`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, dataset, r.CellKey, int64(r.Code), r.Label, r.Fraction); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.RowsPublishedTotal.WithLabelValues(s.Name()).Add(float64(len(rows)))
	logger.L().Info("pg_publish_ok", "dataset", dataset, "rows", len(rows))
	return nil
}
