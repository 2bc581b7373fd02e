// 包 raster：分类栅格的内存模型与规范化（坐标参考检查、重投影）
// 背景：栅格从文件读入一次即不再原地修改；需要重投影时写出一份新栅格
// 约束：像元值是离散类别码，任何非最近邻的重采样都会伪造不存在的类别
package raster

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
)

// NoDataDefault：无效值哨兵的设计默认值
const NoDataDefault int32 = -9999

// GeoreferencingError：栅格缺失坐标参考或仿射变换退化为恒等
// 背景：对未配准的栅格做聚合没有意义，必须在聚合前快速失败，且不可重试
type GeoreferencingError struct {
	Path   string
	Reason string
}

func (e *GeoreferencingError) Error() string {
	return "raster: " + e.Path + ": " + e.Reason
}

// Grid：单波段分类栅格
// GT 采用 GDAL geotransform 顺序：{x0, dx, rxy, y0, ryx, dy}；Data 行主序
type Grid struct {
	W, H   int
	GT     [6]float64
	Proj4  string
	NoData int32
	Data   []int32
}

// At：读取 (col,row) 处的类别码，越界按无效值处理
func (g *Grid) At(col, row int) int32 {
	if col < 0 || col >= g.W || row < 0 || row >= g.H {
		return g.NoData
	}
	return g.Data[row*g.W+col]
}

// PixelToGeo：像元坐标（可取小数，(0,0) 为左上角原点）→ 地理坐标
func (g *Grid) PixelToGeo(col, row float64) (x, y float64) {
	x = g.GT[0] + col*g.GT[1] + row*g.GT[2]
	y = g.GT[3] + col*g.GT[4] + row*g.GT[5]
	return x, y
}

// GeoToPixel：地理坐标 → 像元坐标（小数）
func (g *Grid) GeoToPixel(x, y float64) (col, row float64, err error) {
	det := g.GT[1]*g.GT[5] - g.GT[2]*g.GT[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("raster: singular geotransform %v", g.GT)
	}
	dx := x - g.GT[0]
	dy := y - g.GT[3]
	col = (g.GT[5]*dx - g.GT[2]*dy) / det
	row = (-g.GT[4]*dx + g.GT[1]*dy) / det
	return col, row, nil
}

// Bounds：栅格覆盖范围（其自身坐标系内）
func (g *Grid) Bounds() *geom.Bounds {
	var b *geom.Bounds
	for _, c := range [4][2]float64{{0, 0}, {float64(g.W), 0}, {0, float64(g.H)}, {float64(g.W), float64(g.H)}} {
		x, y := g.PixelToGeo(c[0], c[1])
		if b == nil {
			b = &geom.Bounds{Min: geom.Point{X: x, Y: y}, Max: geom.Point{X: x, Y: y}}
			continue
		}
		if x < b.Min.X {
			b.Min.X = x
		}
		if x > b.Max.X {
			b.Max.X = x
		}
		if y < b.Min.Y {
			b.Min.Y = y
		}
		if y > b.Max.Y {
			b.Max.Y = y
		}
	}
	return b
}

// identityGT：GDAL 顺序下的恒等变换，即像元坐标被原样当作地理坐标
func identityGT(gt [6]float64) bool {
	return gt == [6]float64{0, 1, 0, 0, 0, 1}
}

// CheckGeoreferencing：配准有效性检查，path 仅用于错误上下文
func (g *Grid) CheckGeoreferencing(path string) error {
	if strings.TrimSpace(g.Proj4) == "" {
		return &GeoreferencingError{Path: path, Reason: "missing coordinate reference system"}
	}
	if identityGT(g.GT) {
		return &GeoreferencingError{Path: path, Reason: "identity geotransform, raster is not georeferenced"}
	}
	return nil
}

// normalizeProj4：按空白折叠比较 proj4 串
func normalizeProj4(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SameCRS：两个 proj4 定义是否等价（字面比较，足够覆盖本流水线用到的参考系）
func SameCRS(a, b string) bool {
	return normalizeProj4(a) == normalizeProj4(b)
}
