// 包 publish：输出表的发布端（CSV 文件、PostgreSQL、可选 Kafka）
// 背景：核心只产出值数据（输出行切片）；每种发布端实现同一接口，按配置装配
package publish

import (
	"context"

	"hexstats/internal/lookup"
)

// Sink：把一个数据集的输出行发布到某个目的地
type Sink interface {
	Name() string
	Publish(ctx context.Context, dataset string, rows []lookup.OutputRow) error
}
