package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/pkg/kafka"
)

// Dispatcher defines the interface for pushing notifications out of the
// service. Pass-update pings fan out to every registered device; trigger
// notifications target the pass owner.
type Dispatcher interface {
	// NotifyPassUpdated tells registered devices to re-fetch the pass
	NotifyPassUpdated(ctx context.Context, pass *domain.Pass, devices []*domain.DeviceRegistration) error

	// NotifyTrigger delivers a proximity notification for the pass
	NotifyTrigger(ctx context.Context, pass *domain.Pass, kind domain.EventKind, message string) error

	// Close closes the dispatcher
	Close() error
}

// KafkaDispatcher implements Dispatcher by publishing to the notification
// topic; a downstream relay owns the APNs/FCM delivery.
type KafkaDispatcher struct {
	producer    *kafka.Producer
	topic       string
	serviceName string
}

// DispatcherConfig contains configuration for the Kafka dispatcher
type DispatcherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaDispatcher creates a new Kafka notification dispatcher
func NewKafkaDispatcher(ctx context.Context, cfg *DispatcherConfig) (*KafkaDispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dispatcher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "wallet-notifications"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "wallet-service"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wallet-service-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// pushMessage is the wire format consumed by the push relay
type pushMessage struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	PassID       string    `json:"pass_id"`
	UserID       string    `json:"user_id,omitempty"`
	Platform     string    `json:"platform"`
	SerialNumber string    `json:"serial_number"`
	PushToken    string    `json:"push_token,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotifyPassUpdated publishes one update ping per registered device
func (d *KafkaDispatcher) NotifyPassUpdated(ctx context.Context, pass *domain.Pass, devices []*domain.DeviceRegistration) error {
	for _, device := range devices {
		msg := pushMessage{
			ID:           uuid.New().String(),
			Type:         "pass-updated",
			PassID:       pass.ID,
			Platform:     string(pass.Platform),
			SerialNumber: pass.SerialNumber,
			PushToken:    device.PushToken,
			CreatedAt:    time.Now().UTC(),
		}
		if err := d.publish(ctx, pass.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

// NotifyTrigger publishes a proximity notification for the pass owner
func (d *KafkaDispatcher) NotifyTrigger(ctx context.Context, pass *domain.Pass, kind domain.EventKind, message string) error {
	msg := pushMessage{
		ID:           uuid.New().String(),
		Type:         string(kind),
		PassID:       pass.ID,
		UserID:       pass.UserID,
		Platform:     string(pass.Platform),
		SerialNumber: pass.SerialNumber,
		Message:      message,
		CreatedAt:    time.Now().UTC(),
	}
	return d.publish(ctx, pass.ID, msg)
}

func (d *KafkaDispatcher) publish(ctx context.Context, key string, msg pushMessage) error {
	headers := map[string]string{
		"message_type": msg.Type,
		"message_id":   msg.ID,
		"source":       d.serviceName,
		"content_type": "application/json",
	}
	if err := d.producer.ProduceJSON(ctx, d.topic, key, msg, headers); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", msg.Type, err)
	}
	return nil
}

// Close closes the dispatcher
func (d *KafkaDispatcher) Close() error {
	if d.producer != nil {
		d.producer.Close()
	}
	return nil
}

// NoOpDispatcher is a no-op implementation of Dispatcher for testing and for
// running without a broker
type NoOpDispatcher struct{}

// NewNoOpDispatcher creates a new no-op dispatcher
func NewNoOpDispatcher() *NoOpDispatcher {
	return &NoOpDispatcher{}
}

// NotifyPassUpdated is a no-op
func (d *NoOpDispatcher) NotifyPassUpdated(ctx context.Context, pass *domain.Pass, devices []*domain.DeviceRegistration) error {
	return nil
}

// NotifyTrigger is a no-op
func (d *NoOpDispatcher) NotifyTrigger(ctx context.Context, pass *domain.Pass, kind domain.EventKind, message string) error {
	return nil
}

// Close is a no-op
func (d *NoOpDispatcher) Close() error {
	return nil
}
