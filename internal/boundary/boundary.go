// 包 boundary：国界多边形的加载与预处理（外扩缓冲、重投影、融合为单一几何）
// 背景：六边形网格化之前需要一个略大于国界的单一多边形，外扩可避免栅格边缘被裁切；
// 先缓冲后融合能让相邻要素跨窄缝合并
// 约束：缓冲在米制参考系（默认 EPSG:3395）内执行，结果统一回到地理坐标（经纬度）
package boundary

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// GeometryError：边界输入无效或几何运算失败
type GeometryError struct {
	Op  string
	Err error
}

func (e *GeometryError) Error() string { return "boundary: " + e.Op + ": " + e.Err.Error() }
func (e *GeometryError) Unwrap() error { return e.Err }

// LoadShapefile：读取 shapefile 中的全部多边形要素及其空间参考
// 约束：非多边形要素被忽略；零个多边形要素视为无效输入
func LoadShapefile(path string) ([]geom.Polygon, *proj.SR, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, &GeometryError{Op: "open shapefile", Err: err}
	}
	defer d.Close()
	sr, err := d.SR()
	if err != nil {
		return nil, nil, &GeometryError{Op: "read projection", Err: err}
	}
	var feats []geom.Polygon
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		switch t := g.(type) {
		case geom.Polygon:
			feats = append(feats, t)
		case geom.MultiPolygon:
			feats = append(feats, t...)
		}
	}
	if err := d.Error(); err != nil {
		return nil, nil, &GeometryError{Op: "decode features", Err: err}
	}
	if len(feats) == 0 {
		return nil, nil, &GeometryError{Op: "load", Err: errors.New("no polygon features")}
	}
	return feats, sr, nil
}

// Prepare：对全部要素执行 外扩缓冲 → 回到地理坐标 → 融合 的序列
// 背景：与上游处理约定一致：缓冲必须发生在融合之前
// 约束：bufferMeters 在 metricProj4 参考系内解释；返回单一 Polygon 或 MultiPolygon
func Prepare(feats []geom.Polygon, sr *proj.SR, bufferMeters float64, metricProj4, geoProj4 string) (geom.Polygonal, error) {
	if len(feats) == 0 {
		return nil, &GeometryError{Op: "prepare", Err: errors.New("no polygon features")}
	}
	metricSR, err := proj.Parse(metricProj4)
	if err != nil {
		return nil, &GeometryError{Op: "parse metric crs", Err: err}
	}
	geoSR, err := proj.Parse(geoProj4)
	if err != nil {
		return nil, &GeometryError{Op: "parse geographic crs", Err: err}
	}
	toMetric, err := sr.NewTransform(metricSR)
	if err != nil {
		return nil, &GeometryError{Op: "source to metric transform", Err: err}
	}
	toGeo, err := metricSR.NewTransform(geoSR)
	if err != nil {
		return nil, &GeometryError{Op: "metric to geographic transform", Err: err}
	}

	var buffered []geom.Polygonal
	for i, f := range feats {
		gm, err := f.Transform(toMetric)
		if err != nil {
			return nil, &GeometryError{Op: fmt.Sprintf("reproject feature %d", i), Err: err}
		}
		b, err := bufferPolygonal(gm.(geom.Polygonal), bufferMeters)
		if err != nil {
			return nil, &GeometryError{Op: fmt.Sprintf("buffer feature %d", i), Err: err}
		}
		gg, err := b.Transform(toGeo)
		if err != nil {
			return nil, &GeometryError{Op: fmt.Sprintf("reproject buffered feature %d", i), Err: err}
		}
		buffered = append(buffered, gg.(geom.Polygonal))
	}

	u, err := unionPolygonals(buffered)
	if err != nil {
		return nil, &GeometryError{Op: "union", Err: err}
	}
	return u, nil
}
