// Kafka 发布端（可选）：输出行以 JSON 逐条投递，供流式消费方订阅
// 约束：未配置 KAFKA_BOOTSTRAP 时整个发布端禁用；投递失败按数据集级错误上抛
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"hexstats/internal/logger"
	"hexstats/internal/lookup"
	"hexstats/internal/metrics"
)

// KafkaSink：Kafka 生产者包装
type KafkaSink struct {
	p     *kafka.Producer
	topic string
}

// kafkaMessage：发布到主题的载荷
type kafkaMessage struct {
	Dataset  string  `json:"dataset"`
	CellKey  string  `json:"h3_index"`
	Code     int32   `json:"category"`
	Label    string  `json:"label"`
	Fraction float64 `json:"value"`
}

// NewKafkaSinkFromEnv：按环境变量装配；未配置时返回 nil 表示禁用
func NewKafkaSinkFromEnv() (*KafkaSink, error) {
	servers := os.Getenv("KAFKA_BOOTSTRAP")
	if servers == "" {
		return nil, nil
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "hexstats.shares"
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  servers,
		"compression.type":   "lz4",
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: create kafka producer: %w", err)
	}
	return &KafkaSink{p: p, topic: topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

// Publish：逐行投递后等待全部送达
func (s *KafkaSink) Publish(ctx context.Context, dataset string, rows []lookup.OutputRow) error {
	for _, r := range rows {
		payload, err := json.Marshal(kafkaMessage{
			Dataset: dataset, CellKey: r.CellKey, Code: r.Code, Label: r.Label, Fraction: r.Fraction,
		})
		if err != nil {
			return err
		}
		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
			Key:            []byte(dataset + "/" + r.CellKey),
			Value:          payload,
		}
		if err := s.p.Produce(msg, nil); err != nil {
			return fmt.Errorf("publish: kafka produce: %w", err)
		}
	}
	if n := s.p.Flush(30_000); n > 0 {
		return fmt.Errorf("publish: kafka flush timed out with %d messages pending", n)
	}
	metrics.RowsPublishedTotal.WithLabelValues(s.Name()).Add(float64(len(rows)))
	logger.L().Info("kafka_publish_ok", "dataset", dataset, "rows", len(rows))
	return nil
}

// Close：进程退出前释放生产者
func (s *KafkaSink) Close() {
	if s != nil && s.p != nil {
		s.p.Close()
	}
}
