/*
 * @module service/report/notifier
 * @description 校验运行完成事件的消息通知，支持 Kafka 与 MQTT
 * @architecture 发布订阅模式 - Notifier 扇出到多个 Publisher
 * @stateFlow 运行结束 -> RunEvent(JSON) -> 各 Publisher
 * @rules 未配置 broker 时不创建对应发布者；单个发布者失败不影响其他发布者；通知失败不改变运行结果
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang
 * @refs service/outlier/outlier_service.go, service/config/config_manager.go
 */

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
)

const (
	publishTimeout = 10 * time.Second
	mqttQoS        = 1
)

// RunEvent 运行完成事件
type RunEvent struct {
	RunID         string                 `json:"run_id"`
	ProjectID     string                 `json:"project_id"`
	Trigger       string                 `json:"trigger"`
	Status        string                 `json:"status"`
	TotalOutliers int64                  `json:"total_outliers"`
	Summary       map[string]interface{} `json:"summary,omitempty"`
	ReportPath    string                 `json:"report_path,omitempty"`
	Error         string                 `json:"error,omitempty"`
	FinishedAt    time.Time              `json:"finished_at"`
}

// EventFromRun 由运行记录生成事件
func EventFromRun(run *models.OutlierRun) RunEvent {
	event := RunEvent{
		RunID:         run.ID,
		ProjectID:     run.ProjectID,
		Trigger:       run.Trigger,
		Status:        run.Status,
		TotalOutliers: run.TotalOutliers,
		Summary:       run.Summary,
		ReportPath:    run.ReportPath,
		Error:         run.ErrorMessage,
		FinishedAt:    time.Now(),
	}
	if run.FinishedAt != nil {
		event.FinishedAt = *run.FinishedAt
	}
	return event
}

// Publisher 消息发布者
type Publisher interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
	Name() string
}

// KafkaPublisher Kafka 发布者
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 Kafka 发布者
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Name 发布者名称
func (k *KafkaPublisher) Name() string { return "kafka" }

// Publish 以项目ID为键发送事件
func (k *KafkaPublisher) Publish(ctx context.Context, event RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.ProjectID),
		Value: payload,
		Time:  event.FinishedAt,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(event.Status)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送Kafka消息失败: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// MQTTPublisher MQTT 发布者
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher 创建并连接 MQTT 发布者
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(publishTimeout)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Warn("MQTT连接断开", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("MQTT连接超时: %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT连接失败: %w", err)
	}

	return &MQTTPublisher{client: client, topic: topic}, nil
}

// Name 发布者名称
func (m *MQTTPublisher) Name() string { return "mqtt" }

// Publish 发布事件，子主题为项目ID
func (m *MQTTPublisher) Publish(ctx context.Context, event RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	token := m.client.Publish(m.topic+"/"+event.ProjectID, mqttQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("发布MQTT消息失败: %w", err)
	}
	return nil
}

// Close 断开连接
func (m *MQTTPublisher) Close() error {
	m.client.Disconnect(250)
	return nil
}

// Notifier 事件通知器
type Notifier struct {
	publishers []Publisher
}

// NewNotifier 创建通知器，可传入任意发布者
func NewNotifier(publishers ...Publisher) *Notifier {
	return &Notifier{publishers: publishers}
}

// NewNotifierFromConfig 按配置创建通知器；MQTT 连接失败时只记录警告
func NewNotifierFromConfig(cfg config.NotifyConfig) *Notifier {
	var publishers []Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publishers = append(publishers, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		slog.Info("已启用Kafka通知", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.MQTTBroker != "" {
		publisher, err := NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			slog.Warn("MQTT通知未启用", "broker", cfg.MQTTBroker, "error", err)
		} else {
			publishers = append(publishers, publisher)
			slog.Info("已启用MQTT通知", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
		}
	}
	return NewNotifier(publishers...)
}

// Enabled 是否配置了发布者
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.publishers) > 0
}

// Notify 向全部发布者发送事件，返回合并后的错误
func (n *Notifier) Notify(ctx context.Context, event RunEvent) error {
	if !n.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var errs []error
	for _, p := range n.publishers {
		if err := p.Publish(ctx, event); err != nil {
			slog.Error("运行通知发送失败", "publisher", p.Name(), "run_id", event.RunID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部发布者
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, p := range n.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
