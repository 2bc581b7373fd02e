// 包 zonal：逐六边形单元统计分类栅格的像元计数分布
// 背景：采用「触碰即计入」策略（像元覆盖面与多边形相接即统计），刻意偏宽，
// 避免六边形边界处丢失覆盖；无效值哨兵永不参与计数
// 约束：各单元相互独立，聚合在有界工作池内并行执行，结果经确定性归并，
// 与计算顺序无关
package zonal

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"golang.org/x/sync/errgroup"

	"hexstats/internal/raster"
)

// AggregationError：单元几何与栅格的坐标参考不一致且无法消解
type AggregationError struct {
	Reason string
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Err != nil {
		return "zonal: " + e.Reason + ": " + e.Err.Error()
	}
	return "zonal: " + e.Reason
}
func (e *AggregationError) Unwrap() error { return e.Err }

// CategoryCount：(单元键, 类别码, 像元数) 三元组，每个单元对每个出现的类别各产出一条
type CategoryCount struct {
	CellKey string
	Code    int32
	Count   int64
}

// Zone：一个待统计的单元多边形，坐标系须与栅格一致
type Zone struct {
	Key  string
	Geom geom.Polygonal
}

// zoneItem：R 树条目；内嵌几何以满足索引要求的完整几何接口
type zoneItem struct {
	geom.Polygonal
	zone *Zone
}

// ReprojectZones：把单元多边形从 srcProj4 变换到 dstProj4（仅为聚合这一步）
// 约束：两参考系一致时原样返回；变换失败视为聚合前置条件不满足
func ReprojectZones(zones []Zone, srcProj4, dstProj4 string) ([]Zone, error) {
	if raster.SameCRS(srcProj4, dstProj4) {
		return zones, nil
	}
	srcSR, err := proj.Parse(srcProj4)
	if err != nil {
		return nil, &AggregationError{Reason: "parse zone crs", Err: err}
	}
	dstSR, err := proj.Parse(dstProj4)
	if err != nil {
		return nil, &AggregationError{Reason: "parse raster crs", Err: err}
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, &AggregationError{Reason: "zone to raster transform", Err: err}
	}
	out := make([]Zone, len(zones))
	for i, z := range zones {
		g, err := z.Geom.Transform(t)
		if err != nil {
			return nil, &AggregationError{Reason: "reproject zone " + z.Key, Err: err}
		}
		out[i] = Zone{Key: z.Key, Geom: g.(geom.Polygonal)}
	}
	return out, nil
}

// Aggregate：对每个单元统计其覆盖像元的类别分布
// 背景：R 树先以栅格范围过滤掉完全落在栅格外的单元（缓冲后的边界通常大于栅格覆盖）
func Aggregate(ctx context.Context, zones []Zone, g *raster.Grid, workers int) ([]CategoryCount, error) {
	if g.Proj4 == "" {
		return nil, &AggregationError{Reason: "raster has no coordinate reference system"}
	}
	if workers < 1 {
		workers = 1
	}

	tree := rtree.NewTree(25, 50)
	for i := range zones {
		tree.Insert(&zoneItem{Polygonal: zones[i].Geom, zone: &zones[i]})
	}
	hits := tree.SearchIntersect(g.Bounds())

	var (
		mu  sync.Mutex
		out []CategoryCount
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, h := range hits {
		z := h.(*zoneItem).zone
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts := countZone(z.Geom, g)
			if len(counts) == 0 {
				return nil
			}
			recs := make([]CategoryCount, 0, len(counts))
			for code, n := range counts {
				recs = append(recs, CategoryCount{CellKey: z.Key, Code: code, Count: n})
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// 确定性归并：输出按 (单元键, 类别码) 排序，与协程完成顺序无关
	sort.Slice(out, func(i, j int) bool {
		if out[i].CellKey != out[j].CellKey {
			return out[i].CellKey < out[j].CellKey
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// countZone：单个多边形内的类别计数
// 选取规则：像元中心落在多边形内，或多边形的环经过该像元（触碰即计入）
func countZone(z geom.Polygonal, g *raster.Grid) map[int32]int64 {
	b := z.Bounds()
	col0, row0, col1, row1, ok := pixelWindow(g, b)
	if !ok {
		return nil
	}
	winW := col1 - col0 + 1
	winH := row1 - row0 + 1
	mask := make([]bool, winW*winH)

	markBoundary(z, g, col0, row0, winW, winH, mask)

	polys := z.Polygons()
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			i := (row-row0)*winW + (col - col0)
			if mask[i] {
				continue
			}
			cx, cy := g.PixelToGeo(float64(col)+0.5, float64(row)+0.5)
			if pointInPolygons(geom.Point{X: cx, Y: cy}, polys) {
				mask[i] = true
			}
		}
	}

	counts := make(map[int32]int64)
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			if !mask[(row-row0)*winW+(col-col0)] {
				continue
			}
			v := g.At(col, row)
			if v == g.NoData {
				continue
			}
			counts[v]++
		}
	}
	return counts
}

// pixelWindow：多边形外包框对应的像元窗口，裁剪到栅格范围
func pixelWindow(g *raster.Grid, b *geom.Bounds) (col0, row0, col1, row1 int, ok bool) {
	cMin, cMax := math.Inf(1), math.Inf(-1)
	rMin, rMax := math.Inf(1), math.Inf(-1)
	for _, p := range [4]geom.Point{
		{X: b.Min.X, Y: b.Min.Y}, {X: b.Min.X, Y: b.Max.Y},
		{X: b.Max.X, Y: b.Min.Y}, {X: b.Max.X, Y: b.Max.Y},
	} {
		c, r, err := g.GeoToPixel(p.X, p.Y)
		if err != nil {
			return 0, 0, 0, 0, false
		}
		cMin, cMax = math.Min(cMin, c), math.Max(cMax, c)
		rMin, rMax = math.Min(rMin, r), math.Max(rMax, r)
	}
	col0 = clampInt(int(math.Floor(cMin)), 0, g.W-1)
	col1 = clampInt(int(math.Ceil(cMax))-1, 0, g.W-1)
	row0 = clampInt(int(math.Floor(rMin)), 0, g.H-1)
	row1 = clampInt(int(math.Ceil(rMax))-1, 0, g.H-1)
	if cMax < 0 || rMax < 0 || cMin > float64(g.W) || rMin > float64(g.H) {
		return 0, 0, 0, 0, false
	}
	return col0, row0, col1, row1, true
}

// markBoundary：沿所有环以亚像元步长行进，标记环经过的像元
// 约束：步长为 1/8 像元；环在单个像元内的停留短于一个步长时可能漏标（采样容差）
func markBoundary(z geom.Polygonal, g *raster.Grid, col0, row0, winW, winH int, mask []bool) {
	mark := func(c, r float64) {
		col := int(math.Floor(c)) - col0
		row := int(math.Floor(r)) - row0
		if col >= 0 && col < winW && row >= 0 && row < winH {
			mask[row*winW+col] = true
		}
	}
	for _, p := range z.Polygons() {
		for _, ring := range p {
			n := len(ring)
			if n < 3 {
				continue
			}
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				ac, ar, err := g.GeoToPixel(a.X, a.Y)
				if err != nil {
					return
				}
				bc, br, err := g.GeoToPixel(b.X, b.Y)
				if err != nil {
					return
				}
				steps := int(math.Ceil(math.Max(math.Abs(bc-ac), math.Abs(br-ar)))*8) + 1
				for s := 0; s <= steps; s++ {
					f := float64(s) / float64(steps)
					mark(ac+(bc-ac)*f, ar+(br-ar)*f)
				}
			}
		}
	}
}

// pointInPolygons：偶奇规则的点入多边形判定，环间按奇偶抵消（洞）
func pointInPolygons(pt geom.Point, polys []geom.Polygon) bool {
	inside := false
	for _, p := range polys {
		for _, ring := range p {
			if pointInRing(pt, ring) {
				inside = !inside
			}
		}
	}
	return inside
}

// 射线法判定点是否在环内
func pointInRing(pt geom.Point, ring []geom.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x := pt.X
	y := pt.Y
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi := ring[i].X
		yi := ring[i].Y
		xj := ring[j].X
		yj := ring[j].Y
		intersect := ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
