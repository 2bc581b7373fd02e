// 包 config：流水线的显式配置值，统一从环境变量读取并带默认值
// 背景：缓冲距离、网格分辨率、基准坐标系、无效值哨兵等常量不再散落在各处，
// 而是在进程启动时装配为一个 Config 传入流水线
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// 各 EPSG 代号对应的 proj4 定义；仅收录流水线实际用到的参考系
var epsgProj4 = map[string]string{
	"EPSG:4326": "+proj=longlat +datum=WGS84 +no_defs",
	"EPSG:3395": "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
}

// Config：一次批处理运行的全部可调参数
// 约束：字段在装配后只读；各阶段通过值传递使用，不产生共享可变状态
type Config struct {
	// 核心参数
	BufferMeters  float64 // 边界外扩距离（米）
	HexResolution int     // 六边形网格分辨率
	CanonicalCRS  string  // 基准地理参考系（EPSG 代号）
	MetricCRS     string  // 缓冲用平面参考系（EPSG 代号，单位为米）
	NoData        int32   // 栅格无效值哨兵
	Workers       int     // 聚合阶段工作协程数

	// 对象存储
	InputBucket  string
	OutputBucket string
	InputPrefix  string
	OutputPrefix string
	BoundaryKey  string // 边界 shapefile 的 .shp 键，关联文件按扩展名推导
	AWSProfile   string

	// 策略开关
	LookupStrict bool // 查找表键重复时报错（关闭则保留重复行为）
}

// FromEnv：从环境变量装配配置
// 约束：数值解析失败回退默认值；未知 EPSG 代号在 Proj4 解析时报错，不在装配期报错
func FromEnv() Config {
	c := Config{
		BufferMeters:  envFloat("BUFFER_METERS", 2000),
		HexResolution: envInt("HEX_RESOLUTION", 7),
		CanonicalCRS:  envStr("CANONICAL_CRS", "EPSG:4326"),
		MetricCRS:     envStr("METRIC_CRS", "EPSG:3395"),
		NoData:        int32(envInt("NODATA", -9999)),
		Workers:       envInt("WORKERS", runtime.NumCPU()),
		InputBucket:   os.Getenv("INPUT_BUCKET"),
		OutputBucket:  os.Getenv("OUTPUT_BUCKET"),
		InputPrefix:   os.Getenv("INPUT_PREFIX"),
		OutputPrefix:  os.Getenv("OUTPUT_PREFIX"),
		BoundaryKey:   os.Getenv("BOUNDARY_KEY"),
		AWSProfile:    os.Getenv("AWS_PROFILE"),
		LookupStrict:  envBool("LOOKUP_STRICT", true),
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

// Proj4：把 EPSG 代号解析为 proj4 串
func Proj4(crs string) (string, error) {
	p, ok := epsgProj4[crs]
	if !ok {
		return "", fmt.Errorf("unknown crs %q", crs)
	}
	return p, nil
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}
