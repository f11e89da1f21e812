// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tzappu-go/internal/config"
	"tzappu-go/pkg/log"
	"tzappu-go/pkg/tasks"
)

// maxAttempts 是同一条消息的最大处理次数，全部失败后提交 offset 放弃。
const maxAttempts = 3

// retryBackoff 是第一次重试前的等待时间，之后每次翻倍。
const retryBackoff = 500 * time.Millisecond

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ChatIndexTask) error
}

// Producer 把对话变更事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。消息以 chat_id 为 key，同一对话的事件落在同一分区。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一条对话变更事件。
func (p *Producer) Publish(ctx context.Context, task tasks.ChatIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ChatID),
		Value: taskBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// StartConsumer 启动一个 Kafka 消费者来处理对话变更事件，阻塞直到 ctx 结束。
// group reader 不会重新投递未提交的消息，因此失败的消息在原地重试，
// 达到 maxAttempts 后记录错误并提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.ChatIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := processWithRetry(ctx, processor, task, maxAttempts, retryBackoff); err != nil {
			if ctx.Err() != nil {
				// 关闭期间不提交，重启后从该 offset 继续
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Errorf("对话事件处理 %d 次仍失败，提交 offset 放弃: chatId=%s, action=%s, error: %v",
				maxAttempts, task.ChatID, task.Action, err)
		}
		commit(ctx, r, m)
	}
}

// processWithRetry 最多处理 attempts 次，两次之间按指数退避等待。ctx 结束时立即返回。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.ChatIndexTask, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = processor.Process(ctx, task); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		log.Warnf("处理对话事件失败(第 %d 次)，%v 后重试: chatId=%s, action=%s, error: %v",
			attempt, backoff, task.ChatID, task.Action, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("重试被取消: %w", ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
