// 本地单数据集运行：绕过对象存储，直接消费本地边界/栅格/查找表文件
// 背景：调试与回归验证路径，与批处理共用同一套核心阶段
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"hexstats/internal/config"
	"hexstats/internal/logger"
	"hexstats/internal/pipeline"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	var (
		boundaryPath = flag.String("boundary", "", "boundary shapefile (.shp)")
		rasterPath   = flag.String("raster", "", "categorical raster (.nc)")
		lookupPath   = flag.String("lookup", "", "category lookup table (.csv)")
		outPath      = flag.String("out", "out.csv", "output csv path")
		dataset      = flag.String("dataset", "local", "dataset name for logging")
	)
	flag.Parse()
	if *boundaryPath == "" || *rasterPath == "" || *lookupPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	p := pipeline.New(cfg, nil, nil)
	if err := p.PrepareZonesFromShapefile(*boundaryPath); err != nil {
		l.Error("prepare_zones_error", "err", err)
		os.Exit(1)
	}
	if err := p.RunLocal(context.Background(), *dataset, *rasterPath, *lookupPath, *outPath); err != nil {
		l.Error("local_run_error", "dataset", *dataset, "err", err)
		os.Exit(1)
	}
	l.Info("local_run_done", "dataset", *dataset, "out", *outPath)
}
