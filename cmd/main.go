// 程序入口：读取配置、初始化依赖并驱动批处理；核心阶段在 internal 各包，入口只做装配
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"hexstats/internal/bucket"
	"hexstats/internal/config"
	"hexstats/internal/logger"
	"hexstats/internal/metrics"
	"hexstats/internal/pipeline"
	"hexstats/internal/publish"
	"hexstats/internal/utils"
	"hexstats/internal/version"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	l.Info("hexstats_start", "version", version.Get())
	cfg := config.FromEnv()
	if cfg.InputBucket == "" || cfg.OutputBucket == "" {
		l.Error("config_missing_bucket")
		os.Exit(1)
	}
	ctx := context.Background()

	// 指标端点
	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9108"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			l.Error("metrics_listen_error", "err", err)
		}
	}()
	l.Debug("metrics_listen", "addr", metricsAddr)

	// 发布端装配：数据库与 Kafka 均可选
	var sinks []publish.Sink
	if os.Getenv("PG_HOST") != "" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		if err := publish.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, publish.NewPGSink(db))
		l.Info("pg_sink_ok")
	}
	ks, err := publish.NewKafkaSinkFromEnv()
	if err != nil {
		l.Error("kafka_open_error", "err", err)
		os.Exit(1)
	}
	if ks != nil {
		defer ks.Close()
		sinks = append(sinks, ks)
		l.Info("kafka_sink_ok")
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	}

	bc, err := bucket.Open(ctx, cfg.AWSProfile)
	if err != nil {
		l.Error("bucket_open_error", "err", err)
		os.Exit(1)
	}
	p := pipeline.New(cfg, bc, sinks)

	runBatch := func() error {
		// 边界与网格每轮准备一次，数据集间共享
		dir, err := os.MkdirTemp("", "hexstats_boundary_")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		shpPath, err := p.FetchBoundary(ctx, dir)
		if err != nil {
			return err
		}
		if err := p.PrepareZonesFromShapefile(shpPath); err != nil {
			return err
		}

		names, err := bc.ListBaseNames(ctx, cfg.InputBucket, cfg.InputPrefix)
		if err != nil {
			return err
		}
		l.Info("batch_begin", "datasets", len(names))
		for _, name := range names {
			if skip := markDone(ctx, rc, name); skip {
				metrics.DatasetsSkippedTotal.Inc()
				l.Info("dataset_skipped", "dataset", name)
				continue
			}
			if err := p.Run(ctx, name); err != nil {
				// 单数据集失败不影响后续；清掉完成标记允许重试
				l.Error("dataset_error", "dataset", name, "err", err)
				clearDone(ctx, rc, name)
				continue
			}
		}
		l.Info("batch_done")
		return nil
	}

	if err := runBatch(); err != nil {
		l.Error("batch_error", "err", err)
		os.Exit(1)
	}
	if interval := pipeline.IntervalFromEnv(); interval > 0 {
		pipeline.StartPeriodic(interval, runBatch)
		l.Info("scheduler_started", "interval", interval.String())
		select {}
	}
}

// markDone：尝试占位完成标记；返回真表示此数据集已处理过应跳过
// 约束：Redis 未配置时总是返回假（不去重，保持幂等发布端兜底）
func markDone(ctx context.Context, rc *redis.Client, dataset string) bool {
	if rc == nil {
		return false
	}
	ok, err := rc.SetNX(ctx, "hexstats:done:"+dataset, "1", 0).Result()
	if err != nil {
		logger.L().Warn("redis_marker_error", "dataset", dataset, "err", err)
		return false
	}
	return !ok
}

func clearDone(ctx context.Context, rc *redis.Client, dataset string) {
	if rc == nil {
		return
	}
	if err := rc.Del(ctx, "hexstats:done:"+dataset).Err(); err != nil {
		logger.L().Warn("redis_marker_clear_error", "dataset", dataset, "err", err)
	}
}
