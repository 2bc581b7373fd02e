// 包 hexgrid：把边界多边形网格化为 H3 六边形单元集合
// 背景：单元键是持久身份，单元多边形是按需重建的派生视图；
// 同一次运行内所有单元共享一个分辨率
// 约束：H3 的填充原语按 (lat, lng) 接收顶点，而几何点是 (lon, lat)，
// 两者的换序是易碎约定，集中在本包完成并由测试钉死
package hexgrid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	h3 "github.com/uber/h3-go/v4"
)

// TessellationError：多边形被六边形填充原语拒绝，或分辨率非法
type TessellationError struct {
	Err error
}

func (e *TessellationError) Error() string { return "hexgrid: " + e.Err.Error() }
func (e *TessellationError) Unwrap() error { return e.Err }

// CellSet：去重的单元键集合
// 背景：网格化是集合语义而非列表语义；显式集合保证唯一性与 O(1) 成员判定
type CellSet map[h3.Cell]struct{}

func NewCellSet() CellSet { return make(CellSet) }

func (s CellSet) Add(c h3.Cell) { s[c] = struct{}{} }

func (s CellSet) Has(c h3.Cell) bool {
	_, ok := s[c]
	return ok
}

func (s CellSet) Len() int { return len(s) }

// Union：把另一个集合并入本集合
func (s CellSet) Union(o CellSet) {
	for c := range o {
		s[c] = struct{}{}
	}
}

// Cells：按键值升序返回单元切片
// 背景：集合无序，下游需要与计算顺序无关的稳定遍历序
func (s CellSet) Cells() []h3.Cell {
	out := make([]h3.Cell, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return uint64(out[i]) < uint64(out[j]) })
	return out
}

// Tessellate：把多边形（或多部多边形）转换为覆盖其面积的单元集合
// 约束：多部几何逐部填充后做集合并；只用外环播种，洞内单元不剔除（接受的近似）
func Tessellate(g geom.Polygonal, res int) (CellSet, error) {
	if res < 0 || res > 15 {
		return nil, &TessellationError{Err: fmt.Errorf("resolution %d out of range", res)}
	}
	polys := g.Polygons()
	if len(polys) == 0 {
		return nil, &TessellationError{Err: errors.New("empty polygonal geometry")}
	}
	set := NewCellSet()
	for _, p := range polys {
		cells, err := tessellateSingle(p, res)
		if err != nil {
			return nil, err
		}
		set.Union(cells)
	}
	return set, nil
}

// tessellateSingle：单个多边形的填充，仅使用外环
func tessellateSingle(p geom.Polygon, res int) (CellSet, error) {
	if len(p) == 0 || len(p[0]) < 3 {
		return nil, &TessellationError{Err: errors.New("polygon without a valid exterior ring")}
	}
	loop := make(h3.GeoLoop, 0, len(p[0]))
	for _, pt := range p[0] {
		// 点存储为 (lon, lat)，H3 需要 (lat, lng)
		loop = append(loop, h3.LatLng{Lat: pt.Y, Lng: pt.X})
	}
	cells := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, res)
	set := NewCellSet()
	for _, c := range cells {
		set.Add(c)
	}
	return set, nil
}

// CellPolygon：由单元键重建其边界多边形（地理坐标）
func CellPolygon(c h3.Cell) geom.Polygon {
	b := h3.CellToBoundary(c)
	ring := make([]geom.Point, 0, len(b))
	for _, ll := range b {
		ring = append(ring, geom.Point{X: ll.Lng, Y: ll.Lat})
	}
	return geom.Polygon{ring}
}
