// 重投影：把栅格规范化到目标地理参考系
// 背景：对应上游的 calculate_default_transform + 最近邻重采样；
// 目标范围由源范围边缘加密采样后变换求得，目标分辨率取源像元在栅格中心
// 映射到目标参考系后的尺寸，目标行列数由两者相除得出
package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
)

// 求目标范围时每条边的加密采样点数
const densifyPts = 21

// Reproject：返回目标参考系下的新栅格；源栅格已在目标参考系时为无操作拷贝
// 约束：重采样固定为最近邻；落在源范围之外的目标像元取无效值
func Reproject(g *Grid, dstProj4 string) (*Grid, error) {
	if SameCRS(g.Proj4, dstProj4) {
		out := &Grid{W: g.W, H: g.H, GT: g.GT, Proj4: g.Proj4, NoData: g.NoData}
		out.Data = make([]int32, len(g.Data))
		copy(out.Data, g.Data)
		return out, nil
	}

	srcSR, err := proj.Parse(g.Proj4)
	if err != nil {
		return nil, fmt.Errorf("raster: parse source crs: %w", err)
	}
	dstSR, err := proj.Parse(dstProj4)
	if err != nil {
		return nil, fmt.Errorf("raster: parse target crs: %w", err)
	}
	fwd, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("raster: forward transform: %w", err)
	}
	inv, err := dstSR.NewTransform(srcSR)
	if err != nil {
		return nil, fmt.Errorf("raster: inverse transform: %w", err)
	}

	minX, minY, maxX, maxY, err := targetBounds(g, fwd)
	if err != nil {
		return nil, err
	}

	dx, dy, err := targetResolution(g, fwd)
	if err != nil {
		return nil, err
	}
	w := int(math.Ceil((maxX - minX) / dx))
	h := int(math.Ceil((maxY - minY) / dy))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := &Grid{
		W:      w,
		H:      h,
		Proj4:  dstProj4,
		NoData: g.NoData,
		Data:   make([]int32, w*h),
	}
	out.GT = [6]float64{minX, dx, 0, maxY, 0, -dy}

	for row := 0; row < out.H; row++ {
		for col := 0; col < out.W; col++ {
			x, y := out.PixelToGeo(float64(col)+0.5, float64(row)+0.5)
			sx, sy, err := inv(x, y)
			if err != nil {
				out.Data[row*out.W+col] = out.NoData
				continue
			}
			sc, sr, err := g.GeoToPixel(sx, sy)
			if err != nil {
				return nil, err
			}
			// 最近邻：取包含该点的源像元
			ic, ir := int(sc), int(sr)
			if sc < 0 || sr < 0 || ic >= g.W || ir >= g.H {
				out.Data[row*out.W+col] = out.NoData
				continue
			}
			out.Data[row*out.W+col] = g.Data[ir*g.W+ic]
		}
	}
	return out, nil
}

// targetResolution：源栅格中心处一个像元映射到目标参考系后的尺寸
// 约束：像元纵横比在目标参考系内保持，不强行套用源行列数
func targetResolution(g *Grid, fwd proj.Transformer) (dx, dy float64, err error) {
	cc, cr := float64(g.W)/2, float64(g.H)/2
	x0, y0 := g.PixelToGeo(cc, cr)
	x1, y1 := g.PixelToGeo(cc+1, cr)
	x2, y2 := g.PixelToGeo(cc, cr+1)
	tx0, ty0, err := fwd(x0, y0)
	if err != nil {
		return 0, 0, fmt.Errorf("raster: project resolution: %w", err)
	}
	tx1, ty1, err := fwd(x1, y1)
	if err != nil {
		return 0, 0, fmt.Errorf("raster: project resolution: %w", err)
	}
	tx2, ty2, err := fwd(x2, y2)
	if err != nil {
		return 0, 0, fmt.Errorf("raster: project resolution: %w", err)
	}
	dx = math.Hypot(tx1-tx0, ty1-ty0)
	dy = math.Hypot(tx2-tx0, ty2-ty0)
	if dx <= 0 || dy <= 0 {
		return 0, 0, fmt.Errorf("raster: degenerate target resolution at grid center")
	}
	return dx, dy, nil
}

// targetBounds：源范围四边加密采样后投到目标参考系，取外包
func targetBounds(g *Grid, fwd proj.Transformer) (minX, minY, maxX, maxY float64, err error) {
	first := true
	add := func(col, row float64) error {
		x, y := g.PixelToGeo(col, row)
		tx, ty, err := fwd(x, y)
		if err != nil {
			return err
		}
		if first {
			minX, maxX, minY, maxY = tx, tx, ty, ty
			first = false
			return nil
		}
		if tx < minX {
			minX = tx
		}
		if tx > maxX {
			maxX = tx
		}
		if ty < minY {
			minY = ty
		}
		if ty > maxY {
			maxY = ty
		}
		return nil
	}
	w, h := float64(g.W), float64(g.H)
	for i := 0; i < densifyPts; i++ {
		f := float64(i) / float64(densifyPts-1)
		if err := add(f*w, 0); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("raster: project bounds: %w", err)
		}
		if err := add(f*w, h); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("raster: project bounds: %w", err)
		}
		if err := add(0, f*h); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("raster: project bounds: %w", err)
		}
		if err := add(w, f*h); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("raster: project bounds: %w", err)
		}
	}
	return minX, minY, maxX, maxY, nil
}
