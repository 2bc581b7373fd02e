package raster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lonlat = "+proj=longlat +datum=WGS84 +no_defs"
	merc   = "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"
)

func testGrid() *Grid {
	return &Grid{
		W: 4, H: 4,
		GT:     [6]float64{0, 1, 0, 4, 0, -1},
		Proj4:  lonlat,
		NoData: NoDataDefault,
		Data: []int32{
			1, 1, 1, 2,
			1, 1, 1, 2,
			1, 1, 1, 2,
			2, 2, 2, 2,
		},
	}
}

func TestAffineRoundTrip(t *testing.T) {
	g := &Grid{W: 10, H: 10, GT: [6]float64{100, 0.5, 0, 200, 0, -0.5}}
	x, y := g.PixelToGeo(2, 3)
	assert.Equal(t, 101.0, x)
	assert.Equal(t, 198.5, y)

	col, row, err := g.GeoToPixel(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, col, 1e-12)
	assert.InDelta(t, 3, row, 1e-12)
}

func TestGeoToPixelSingular(t *testing.T) {
	g := &Grid{GT: [6]float64{0, 0, 0, 0, 0, 0}}
	_, _, err := g.GeoToPixel(1, 1)
	assert.Error(t, err)
}

func TestAtOutOfRange(t *testing.T) {
	g := testGrid()
	assert.Equal(t, int32(1), g.At(0, 0))
	assert.Equal(t, g.NoData, g.At(-1, 0))
	assert.Equal(t, g.NoData, g.At(0, 4))
}

func TestCheckGeoreferencing(t *testing.T) {
	var ge *GeoreferencingError

	g := testGrid()
	require.NoError(t, g.CheckGeoreferencing("ok.nc"))

	g = testGrid()
	g.Proj4 = ""
	err := g.CheckGeoreferencing("nocrs.nc")
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, ge.Error(), "nocrs.nc")

	g = testGrid()
	g.GT = [6]float64{0, 1, 0, 0, 0, 1}
	err = g.CheckGeoreferencing("ident.nc")
	assert.ErrorAs(t, err, &ge)
}

func TestSameCRS(t *testing.T) {
	assert.True(t, SameCRS(lonlat, "  +proj=longlat   +datum=WGS84 +no_defs "))
	assert.False(t, SameCRS(lonlat, "+proj=merc +datum=WGS84"))
}

func TestGridBounds(t *testing.T) {
	b := testGrid().Bounds()
	assert.Equal(t, 0.0, b.Min.X)
	assert.Equal(t, 4.0, b.Max.X)
	assert.Equal(t, 0.0, b.Min.Y)
	assert.Equal(t, 4.0, b.Max.Y)
}

func TestNetCDFRoundTrip(t *testing.T) {
	g := testGrid()
	path := filepath.Join(t.TempDir(), "grid.nc")
	require.NoError(t, g.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.W, got.W)
	assert.Equal(t, g.H, got.H)
	assert.Equal(t, g.GT, got.GT)
	assert.Equal(t, g.Proj4, got.Proj4)
	assert.Equal(t, g.NoData, got.NoData)
	assert.Equal(t, g.Data, got.Data)
}

func TestReprojectNoop(t *testing.T) {
	g := testGrid()
	out, err := Reproject(g, lonlat)
	require.NoError(t, err)
	assert.Equal(t, g.GT, out.GT)
	assert.Equal(t, g.Data, out.Data)

	// 无操作也必须是拷贝，不得与源共享内存
	out.Data[0] = 42
	assert.Equal(t, int32(1), g.Data[0])
}

func TestReprojectMercatorToLonLat(t *testing.T) {
	// 赤道附近的小栅格：墨卡托 → 经纬度，类别值只能来自源或无效值
	g := testGrid()
	g.Proj4 = merc
	g.GT = [6]float64{0, 1000, 0, 4000, 0, -1000}

	out, err := Reproject(g, lonlat)
	require.NoError(t, err)
	assert.Equal(t, lonlat, out.Proj4)
	assert.NotEqual(t, [6]float64{0, 1, 0, 0, 0, 1}, out.GT)

	// 行列数由目标范围除以映射后的像元尺寸得出，与源接近但不强制相等
	assert.GreaterOrEqual(t, out.W, 4)
	assert.LessOrEqual(t, out.W, 5)
	assert.GreaterOrEqual(t, out.H, 4)
	assert.LessOrEqual(t, out.H, 5)
	// 赤道处墨卡托近似等角，方形像元映射后仍应近似方形
	assert.InDelta(t, 1.0, -out.GT[5]/out.GT[1], 0.05)

	seen := map[int32]bool{}
	for _, v := range out.Data {
		assert.Contains(t, []int32{1, 2, g.NoData}, v)
		seen[v] = true
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}

// 非方形像元的重投影应保持像元纵横比，而不是把源行列数硬套到目标范围上
func TestReprojectPreservesPixelAspect(t *testing.T) {
	g := testGrid()
	g.Proj4 = merc
	g.GT = [6]float64{0, 1000, 0, 8000, 0, -2000}

	out, err := Reproject(g, lonlat)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, -out.GT[5]/out.GT[1], 0.05)
	assert.GreaterOrEqual(t, out.W, 4)
	assert.LessOrEqual(t, out.W, 5)
	assert.GreaterOrEqual(t, out.H, 4)
	assert.LessOrEqual(t, out.H, 5)
}
