// GEOS 桥接：缓冲与融合交给 GEOS 完成，几何经 GeoJSON 往返
// 约束：GEOS 几何必须显式 Destroy；桥接只支持 Polygon/MultiPolygon
package boundary

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/twpayne/go-geos"
)

const bufferQuadSegs = 8

// bufferPolygonal：在当前（米制）坐标系内对几何外扩 dist
func bufferPolygonal(g geom.Polygonal, dist float64) (geom.Polygonal, error) {
	gg, err := toGeos(g)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()
	b := gg.Buffer(dist, bufferQuadSegs)
	if b == nil {
		return nil, errors.New("geos buffer failed")
	}
	defer b.Destroy()
	return fromGeos(b)
}

// unionPolygonals：把多个多边形融合为单一 Polygon/MultiPolygon
func unionPolygonals(gs []geom.Polygonal) (geom.Polygonal, error) {
	if len(gs) == 0 {
		return nil, errors.New("nothing to union")
	}
	acc, err := toGeos(gs[0])
	if err != nil {
		return nil, err
	}
	for _, g := range gs[1:] {
		next, err := toGeos(g)
		if err != nil {
			acc.Destroy()
			return nil, err
		}
		u := acc.Union(next)
		next.Destroy()
		acc.Destroy()
		if u == nil {
			return nil, errors.New("geos union failed")
		}
		acc = u
	}
	defer acc.Destroy()
	return fromGeos(acc)
}

type geoJSONGeom struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// toGeos：ctessum 几何 → GeoJSON → GEOS
func toGeos(g geom.Polygonal) (*geos.Geom, error) {
	polys := g.Polygons()
	coords := make([][][][2]float64, 0, len(polys))
	for _, p := range polys {
		rings := make([][][2]float64, 0, len(p))
		for _, ring := range p {
			if len(ring) < 3 {
				continue
			}
			r := make([][2]float64, 0, len(ring)+1)
			for _, pt := range ring {
				r = append(r, [2]float64{pt.X, pt.Y})
			}
			// GEOS 要求闭合环
			if r[0] != r[len(r)-1] {
				r = append(r, r[0])
			}
			rings = append(rings, r)
		}
		if len(rings) > 0 {
			coords = append(coords, rings)
		}
	}
	if len(coords) == 0 {
		return nil, errors.New("empty polygonal geometry")
	}
	raw, err := json.Marshal(map[string]any{"type": "MultiPolygon", "coordinates": coords})
	if err != nil {
		return nil, err
	}
	gg, err := geos.NewGeomFromGeoJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("geos parse: %w", err)
	}
	return gg, nil
}

// fromGeos：GEOS → GeoJSON → ctessum 几何
func fromGeos(g *geos.Geom) (geom.Polygonal, error) {
	var gj geoJSONGeom
	if err := json.Unmarshal([]byte(g.ToGeoJSON(-1)), &gj); err != nil {
		return nil, err
	}
	switch gj.Type {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(gj.Coordinates, &rings); err != nil {
			return nil, err
		}
		return ringsToPolygon(rings), nil
	case "MultiPolygon":
		var mp [][][][2]float64
		if err := json.Unmarshal(gj.Coordinates, &mp); err != nil {
			return nil, err
		}
		out := make(geom.MultiPolygon, 0, len(mp))
		for _, rings := range mp {
			out = append(out, ringsToPolygon(rings))
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected geometry type %q", gj.Type)
	}
}

func ringsToPolygon(rings [][][2]float64) geom.Polygon {
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		r := make([]geom.Point, 0, len(ring))
		for _, c := range ring {
			r = append(r, geom.Point{X: c[0], Y: c[1]})
		}
		// 去掉闭合重复点，ctessum 侧按开环存储
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		p = append(p, r)
	}
	return p
}
