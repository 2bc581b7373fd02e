// 包 pipeline：单数据集的阶段编排（取回 → 规范化 → 聚合 → 归一化 → 发布）
// 背景：核心各阶段只传值数据（几何、网格、表）；本包负责顺序、隔离工作目录与错误留痕
// 约束：任一阶段失败只中止当前数据集；工作目录无论成败都会回收
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/google/uuid"

	"hexstats/internal/boundary"
	"hexstats/internal/bucket"
	"hexstats/internal/config"
	"hexstats/internal/hexgrid"
	"hexstats/internal/logger"
	"hexstats/internal/lookup"
	"hexstats/internal/metrics"
	"hexstats/internal/publish"
	"hexstats/internal/raster"
	"hexstats/internal/zonal"
)

// Fetcher：对象存储协作方的最小契约（取回输入包 / 发布结果文件）
type Fetcher interface {
	ListBaseNames(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, dst string) error
	Upload(ctx context.Context, src, bucket, key string) error
}

// Pipeline：一次批处理运行的流水线实例
// 约束：zones 在批开始时准备一次（国界不随数据集变化），各数据集运行间只读共享
type Pipeline struct {
	cfg   config.Config
	fetch Fetcher
	sinks []publish.Sink
	zones []zonal.Zone
	l     *slog.Logger
}

func New(cfg config.Config, fetch Fetcher, sinks []publish.Sink) *Pipeline {
	return &Pipeline{cfg: cfg, fetch: fetch, sinks: sinks, l: logger.L()}
}

// stage：统一的阶段执行包装，负责计时、指标与错误留痕
func (p *Pipeline) stage(name, dataset string, fn func() error) error {
	st := logger.Stage(p.l, name, dataset)
	if err := fn(); err != nil {
		st.Fail(err)
		metrics.StageFailTotal.WithLabelValues(name).Inc()
		return fmt.Errorf("stage %s: %w", name, err)
	}
	metrics.StageDurationMs.WithLabelValues(name).Observe(st.DurationMs())
	st.Done()
	return nil
}

// PrepareZonesFromShapefile：由本地边界 shapefile 准备六边形单元集
// 背景：边界 → 外扩缓冲融合 → 网格化 → 单元多边形实体化，键是持久身份
func (p *Pipeline) PrepareZonesFromShapefile(shpPath string) error {
	return p.stage("prepare_zones", "", func() error {
		feats, sr, err := boundary.LoadShapefile(shpPath)
		if err != nil {
			return err
		}
		return p.prepareZones(feats, sr)
	})
}

// FetchBoundary：把边界 shapefile 组（.shp/.shx/.dbf/.prj）取回到 dir，返回 .shp 路径
func (p *Pipeline) FetchBoundary(ctx context.Context, dir string) (string, error) {
	base := p.cfg.BoundaryKey
	if len(base) > 4 && base[len(base)-4:] == ".shp" {
		base = base[:len(base)-4]
	}
	var shpPath string
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		key := base + ext
		dst := filepath.Join(dir, filepath.Base(key))
		if err := p.fetch.Download(ctx, p.cfg.InputBucket, key, dst); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shpPath = dst
		}
	}
	return shpPath, nil
}

func (p *Pipeline) prepareZones(feats []geom.Polygon, sr *proj.SR) error {
	metricP4, err := config.Proj4(p.cfg.MetricCRS)
	if err != nil {
		return err
	}
	geoP4, err := config.Proj4(p.cfg.CanonicalCRS)
	if err != nil {
		return err
	}
	b, err := boundary.Prepare(feats, sr, p.cfg.BufferMeters, metricP4, geoP4)
	if err != nil {
		return err
	}
	set, err := hexgrid.Tessellate(b, p.cfg.HexResolution)
	if err != nil {
		return err
	}
	cells := set.Cells()
	metrics.CellsTessellatedTotal.Add(float64(len(cells)))
	zones := make([]zonal.Zone, 0, len(cells))
	for _, c := range cells {
		zones = append(zones, zonal.Zone{Key: c.String(), Geom: hexgrid.CellPolygon(c)})
	}
	p.zones = zones
	p.l.Info("zones_ready", "cells", len(zones), "resolution", p.cfg.HexResolution)
	return nil
}

// Run：处理一个数据集，从取回输入包到发布结果
// 约束：每个数据集使用独立的一次性工作目录；失败不会波及其他数据集的处理
func (p *Pipeline) Run(ctx context.Context, dataset string) (err error) {
	metrics.DatasetsTotal.Inc()
	if len(p.zones) == 0 {
		return fmt.Errorf("pipeline: zones not prepared")
	}

	tmp, err := os.MkdirTemp("", "hexstats_"+uuid.NewString()+"_")
	if err != nil {
		return fmt.Errorf("pipeline: temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmp)
		p.l.Debug("workdir_removed", "dataset", dataset, "dir", tmp)
		if err != nil {
			metrics.DatasetsFailedTotal.Inc()
		}
	}()
	p.l.Info("dataset_begin", "dataset", dataset, "workdir", tmp)

	// 取回并解出输入包
	var rasterPath, lookupPath string
	if err = p.stage("fetch", dataset, func() error {
		zipKey := p.cfg.InputPrefix + dataset + ".zip"
		zipPath := filepath.Join(tmp, dataset+".zip")
		if err := p.fetch.Download(ctx, p.cfg.InputBucket, zipKey, zipPath); err != nil {
			return err
		}
		if err := bucket.ExtractZip(zipPath, tmp); err != nil {
			return err
		}
		var err error
		if rasterPath, err = bucket.FindByExtension(tmp, ".nc"); err != nil {
			return err
		}
		lookupPath, err = bucket.FindByExtension(tmp, ".csv")
		return err
	}); err != nil {
		return err
	}

	outPath := filepath.Join(tmp, dataset+".csv")
	rows, err := p.process(ctx, dataset, rasterPath, lookupPath, tmp)
	if err != nil {
		return err
	}

	// 发布：CSV 始终落盘上传，其余发布端按装配执行
	if err = p.stage("publish", dataset, func() error {
		if err := publish.WriteCSV(outPath, rows); err != nil {
			return err
		}
		metrics.RowsPublishedTotal.WithLabelValues("csv").Add(float64(len(rows)))
		if err := p.fetch.Upload(ctx, outPath, p.cfg.OutputBucket, p.cfg.OutputPrefix+dataset+".csv"); err != nil {
			return err
		}
		for _, s := range p.sinks {
			if err := s.Publish(ctx, dataset, rows); err != nil {
				return fmt.Errorf("sink %s: %w", s.Name(), err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	p.l.Info("dataset_done", "dataset", dataset, "rows", len(rows))
	return nil
}

// process：数据集的核心阶段（本地文件进，输出行出），供批处理与本地运行共用
func (p *Pipeline) process(ctx context.Context, dataset, rasterPath, lookupPath, workDir string) ([]lookup.OutputRow, error) {
	canonicalP4, err := config.Proj4(p.cfg.CanonicalCRS)
	if err != nil {
		return nil, err
	}

	// 栅格规范化：配准检查是致命的，不可重试
	var grid *raster.Grid
	if err := p.stage("normalize_raster", dataset, func() error {
		g, err := raster.ReadFile(rasterPath)
		if err != nil {
			return err
		}
		g.NoData = p.cfg.NoData
		if err := g.CheckGeoreferencing(rasterPath); err != nil {
			return err
		}
		if raster.SameCRS(g.Proj4, canonicalP4) {
			grid = g
			return nil
		}
		rg, err := raster.Reproject(g, canonicalP4)
		if err != nil {
			return err
		}
		// 重投影结果写为新栅格，源文件保持不动
		if err := rg.WriteFile(filepath.Join(workDir, "reprojected.nc")); err != nil {
			return err
		}
		grid = rg
		return nil
	}); err != nil {
		return nil, err
	}

	// 聚合：单元多边形仅为这一步变换到栅格参考系
	var counts []zonal.CategoryCount
	if err := p.stage("aggregate", dataset, func() error {
		zones, err := zonal.ReprojectZones(p.zones, canonicalP4, grid.Proj4)
		if err != nil {
			return err
		}
		counts, err = zonal.Aggregate(ctx, zones, grid, p.cfg.Workers)
		if err != nil {
			return err
		}
		var px int64
		for _, c := range counts {
			px += c.Count
		}
		metrics.PixelsCountedTotal.Add(float64(px))
		return nil
	}); err != nil {
		return nil, err
	}

	// 归一化与标签连接
	var rows []lookup.OutputRow
	if err := p.stage("normalize_shares", dataset, func() error {
		t, err := lookup.LoadCSV(lookupPath)
		if err != nil {
			return err
		}
		if p.cfg.LookupStrict {
			if err := t.Validate(); err != nil {
				return err
			}
		}
		rows = lookup.Normalize(counts, t)
		return nil
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// RunLocal：处理本地文件形式的单个数据集，结果写到 outPath（调试与回归路径）
func (p *Pipeline) RunLocal(ctx context.Context, dataset, rasterPath, lookupPath, outPath string) error {
	if len(p.zones) == 0 {
		return fmt.Errorf("pipeline: zones not prepared")
	}
	tmp, err := os.MkdirTemp("", "hexstats_local_")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	rows, err := p.process(ctx, dataset, rasterPath, lookupPath, tmp)
	if err != nil {
		return err
	}
	return publish.WriteCSV(outPath, rows)
}
