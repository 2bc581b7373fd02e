// NetCDF 编解码：栅格以 COARDS 风格的单变量 NetCDF 文件落盘
// 配准信息放在数据变量的属性上：proj4（字符串）、geotransform（六元 double）、nodata
// 约束：经典 NetCDF 格式（不支持 NetCDF-4）；数据变量行主序，维度为 (y, x)
package raster

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
)

// bandVar：数据变量名
const bandVar = "band1"

// ReadFile：读取单波段分类栅格
// 约束：优先读名为 band1 的变量，缺失时回退到首个二维变量
func ReadFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("raster: open netcdf %s: %w", path, err)
	}

	name := bandVar
	dims := cf.Header.Lengths(name)
	if len(dims) != 2 {
		name = ""
		for _, v := range cf.Header.Variables() {
			if d := cf.Header.Lengths(v); len(d) == 2 {
				name, dims = v, d
				break
			}
		}
		if name == "" {
			return nil, fmt.Errorf("raster: %s: no 2-d data variable", path)
		}
	}
	h, w := dims[0], dims[1]

	r := cf.Reader(name, nil, nil)
	buf := r.Zero(h * w)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("raster: read %s: %w", path, err)
	}
	data, err := toInt32(buf)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", path, err)
	}
	if len(data) != h*w {
		return nil, fmt.Errorf("raster: %s: got %d values for %dx%d grid", path, len(data), w, h)
	}

	g := &Grid{W: w, H: h, Data: data, NoData: NoDataDefault}
	if v, ok := cf.Header.GetAttribute(name, "proj4").(string); ok {
		g.Proj4 = v
	}
	if gt, ok := attrFloats(cf.Header.GetAttribute(name, "geotransform")); ok && len(gt) == 6 {
		copy(g.GT[:], gt)
	} else {
		// 配准缺失按恒等处理，由 CheckGeoreferencing 拒绝
		g.GT = [6]float64{0, 1, 0, 0, 0, 1}
	}
	if nd, ok := attrFloats(cf.Header.GetAttribute(name, "nodata")); ok && len(nd) == 1 {
		g.NoData = int32(math.Round(nd[0]))
	}
	return g, nil
}

// WriteFile：写出栅格为新文件，不改动源
func (g *Grid) WriteFile(path string) error {
	h := cdf.NewHeader([]string{"y", "x"}, []int{g.H, g.W})
	h.AddVariable(bandVar, []string{"y", "x"}, []int32{})
	h.AddAttribute(bandVar, "proj4", g.Proj4)
	h.AddAttribute(bandVar, "geotransform", g.GT[:])
	h.AddAttribute(bandVar, "nodata", []float64{float64(g.NoData)})
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cf, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("raster: create netcdf %s: %w", path, err)
	}
	w := cf.Writer(bandVar, nil, nil)
	if _, err := w.Write(g.Data); err != nil {
		return fmt.Errorf("raster: write %s: %w", path, err)
	}
	return cdf.UpdateNumRecs(f)
}

// toInt32：把 cdf 返回的任意数值缓冲转为类别码切片
func toInt32(buf any) ([]int32, error) {
	switch t := buf.(type) {
	case []int32:
		return t, nil
	case []int16:
		out := make([]int32, len(t))
		for i, v := range t {
			out[i] = int32(v)
		}
		return out, nil
	case []int8:
		out := make([]int32, len(t))
		for i, v := range t {
			out[i] = int32(v)
		}
		return out, nil
	case []float32:
		out := make([]int32, len(t))
		for i, v := range t {
			out[i] = int32(math.Round(float64(v)))
		}
		return out, nil
	case []float64:
		out := make([]int32, len(t))
		for i, v := range t {
			out[i] = int32(math.Round(v))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", buf)
	}
}

// attrFloats：数值属性的宽松读取（double/float/int 均可）
func attrFloats(v any) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		return t, true
	case []float32:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, true
	case []int32:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, true
	default:
		return nil, false
	}
}
