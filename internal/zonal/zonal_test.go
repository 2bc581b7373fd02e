package zonal

import (
	"context"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexstats/internal/raster"
)

const lonlat = "+proj=longlat +datum=WGS84 +no_defs"

// 4x4 栅格：左上 3x3 块为类别 1，其余为类别 2，覆盖地理范围 (0,0)-(4,4)
func testGrid() *raster.Grid {
	return &raster.Grid{
		W: 4, H: 4,
		GT:     [6]float64{0, 1, 0, 4, 0, -1},
		Proj4:  lonlat,
		NoData: raster.NoDataDefault,
		Data: []int32{
			1, 1, 1, 2,
			1, 1, 1, 2,
			1, 1, 1, 2,
			2, 2, 2, 2,
		},
	}
}

func squareZone(key string, xMin, yMin, xMax, yMax float64) Zone {
	return Zone{Key: key, Geom: geom.Polygon{{
		{X: xMin, Y: yMin},
		{X: xMax, Y: yMin},
		{X: xMax, Y: yMax},
		{X: xMin, Y: yMax},
	}}}
}

func TestAggregateFullCover(t *testing.T) {
	zones := []Zone{squareZone("cell", 0, 0, 4, 4)}
	got, err := Aggregate(context.Background(), zones, testGrid(), 2)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{CellKey: "cell", Code: 1, Count: 9},
		{CellKey: "cell", Code: 2, Count: 7},
	}, got)
}

func TestAggregateNoDataExcluded(t *testing.T) {
	g := testGrid()
	g.Data[0] = g.NoData // 一个类别 1 像元改为无效值
	got, err := Aggregate(context.Background(), []Zone{squareZone("cell", 0, 0, 4, 4)}, g, 1)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{CellKey: "cell", Code: 1, Count: 8},
		{CellKey: "cell", Code: 2, Count: 7},
	}, got)
}

// 触碰即计入：多边形只掠过一个像元的角落，该像元仍被统计
func TestAggregateBoundaryTouch(t *testing.T) {
	zones := []Zone{squareZone("tiny", 0.1, 3.6, 0.4, 3.9)}
	got, err := Aggregate(context.Background(), zones, testGrid(), 1)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{CellKey: "tiny", Code: 1, Count: 1},
	}, got)
}

// R 树预过滤：栅格外的单元被剔除，不影响栅格内单元的统计
func TestAggregateMixedInsideOutside(t *testing.T) {
	zones := []Zone{
		squareZone("out_west", -50, -50, -49, -49),
		squareZone("in", 0, 0, 4, 4),
		squareZone("out_east", 200, 200, 201, 201),
	}
	got, err := Aggregate(context.Background(), zones, testGrid(), 2)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{CellKey: "in", Code: 1, Count: 9},
		{CellKey: "in", Code: 2, Count: 7},
	}, got)
}

// 角部擦掠：多边形只以极小面积掠过像元角，四个相邻像元都应计入
func TestAggregateCornerClip(t *testing.T) {
	zones := []Zone{squareZone("corner", 0.9, 2.9, 1.1, 3.1)}
	got, err := Aggregate(context.Background(), zones, testGrid(), 1)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{
		{CellKey: "corner", Code: 1, Count: 4},
	}, got)
}

func TestAggregateZoneOutsideRaster(t *testing.T) {
	zones := []Zone{squareZone("far", 100, 100, 101, 101)}
	got, err := Aggregate(context.Background(), zones, testGrid(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregateDeterministic(t *testing.T) {
	zones := []Zone{
		squareZone("a", 0, 0, 2, 4),
		squareZone("b", 2, 0, 4, 4),
		squareZone("c", 1, 1, 3, 3),
		squareZone("d", 0, 0, 4, 4),
	}
	g := testGrid()
	first, err := Aggregate(context.Background(), zones, g, 4)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Aggregate(context.Background(), zones, g, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAggregateNoCRS(t *testing.T) {
	g := testGrid()
	g.Proj4 = ""
	_, err := Aggregate(context.Background(), []Zone{squareZone("cell", 0, 0, 4, 4)}, g, 1)
	var ae *AggregationError
	assert.ErrorAs(t, err, &ae)
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Aggregate(ctx, []Zone{squareZone("cell", 0, 0, 4, 4)}, testGrid(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReprojectZonesNoop(t *testing.T) {
	zones := []Zone{squareZone("cell", 0, 0, 4, 4)}
	out, err := ReprojectZones(zones, lonlat, lonlat)
	require.NoError(t, err)
	assert.Equal(t, zones, out)
}

func TestReprojectZonesToMercator(t *testing.T) {
	merc := "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"
	zones := []Zone{squareZone("cell", 0, 0, 1, 1)}
	out, err := ReprojectZones(zones, lonlat, merc)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cell", out[0].Key)

	// 赤道附近 1° 约 111km，变换后的外包必须是米制量级
	b := out[0].Geom.Bounds()
	assert.Greater(t, b.Max.X-b.Min.X, 100_000.0)
}
