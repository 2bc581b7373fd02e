// 周期调度：按固定间隔重扫输入前缀，处理新到的数据集
// 背景：上游按批投放输入包；常驻进程按间隔轮询即可，无需消息通知
package pipeline

import (
	"os"
	"strconv"
	"time"

	"hexstats/internal/logger"
)

// IntervalFromEnv：读取重扫间隔（小时）；未配置或非法时返回 0 表示只跑一轮
func IntervalFromEnv() time.Duration {
	v := os.Getenv("BATCH_INTERVAL_HOURS")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Hour
}

// StartPeriodic：在后台协程内按间隔重复执行一轮批处理
// 约束：单轮失败只记日志，调度继续；不做补偿或退避
func StartPeriodic(interval time.Duration, run func() error) {
	l := logger.L()
	go func() {
		for {
			time.Sleep(interval)
			l.Info("batch_rescan_start", "interval", interval.String())
			if err := run(); err != nil {
				l.Error("batch_rescan_error", "err", err)
			} else {
				l.Info("batch_rescan_done")
			}
		}
	}()
}
