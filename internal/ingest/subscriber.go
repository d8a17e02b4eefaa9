// Package ingest consumes soil readings published by field sensors over MQTT.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"soil-advisor/internal/config"
	"soil-advisor/internal/models"
	"soil-advisor/pkg/dedup"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// Recorder stores a validated reading; *services.ReadingService satisfies it
type Recorder interface {
	Record(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error)
}

// Connect dials the broker, retrying with exponential backoff
func Connect(ctx context.Context, cfg config.MQTTConfig, logger *logging.StructuredLogger) (mqtt.Client, error) {
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn(ctx, "[MQTT_CONNECTION_LOST] Broker connection lost", logging.Fields{
			"broker": connAddr,
			"error":  err.Error(),
		})
	})

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 5
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn(ctx, "[MQTT_CONNECT_RETRY] Failed to connect to broker", logging.Fields{
				"broker": connAddr,
				"error":  token.Error().Error(),
			})
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	logger.Info(ctx, "[MQTT_CONNECTED] Connected to broker", logging.Fields{
		"broker":    connAddr,
		"client_id": cfg.ClientID,
	})

	return client, nil
}

// Subscriber records every reading published on a topic
type Subscriber struct {
	client   mqtt.Client
	topic    string
	qos      byte
	recorder Recorder
	dedup    *dedup.Deduper
	logger   *logging.ContextLogger
	metrics  *metrics.Collector
}

// NewSubscriber creates a subscriber over an already connected client
func NewSubscriber(client mqtt.Client, topic string, qos byte, recorder Recorder, deduper *dedup.Deduper, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Subscriber {
	return &Subscriber{
		client:   client,
		topic:    topic,
		qos:      qos,
		recorder: recorder,
		dedup:    deduper,
		logger:   logger.WithFields(logging.Fields{"component": "mqtt_subscriber", "topic": topic}),
		metrics:  metricsCollector,
	}
}

// Run subscribes and blocks until ctx is cancelled, then unsubscribes and disconnects
func (s *Subscriber) Run(ctx context.Context) error {
	ctx = logging.WithSource(ctx, "mqtt")

	token := s.client.Subscribe(s.topic, s.qos, s.onMessage(ctx))
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, token.Error())
	}

	s.logger.Info(ctx, "[MQTT_SUBSCRIBED] Subscribed to reading topic", logging.Fields{
		"topic": s.topic,
		"qos":   s.qos,
	})

	<-ctx.Done()

	s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
	s.client.Disconnect(250)

	s.logger.Info(context.Background(), "[MQTT_CLOSED] Subscription closed", logging.Fields{
		"topic": s.topic,
	})
	return nil
}

func (s *Subscriber) onMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.Handle(ctx, msg.Payload()); err != nil {
			s.logger.Warn(ctx, "[MQTT_MESSAGE_ERROR] Reading message dropped", logging.Fields{
				"topic":     msg.Topic(),
				"duplicate": msg.Duplicate(),
				"error":     err.Error(),
			})
		}
	}
}

// ErrDuplicate is returned for a message_id already processed inside the dedup window
var ErrDuplicate = errors.New("duplicate message")

// Handle decodes one JSON payload and records it
func (s *Subscriber) Handle(ctx context.Context, payload []byte) error {
	var in models.ReadingInput
	if err := json.Unmarshal(payload, &in); err != nil {
		s.metrics.RecordIngestionError("decode_error")
		return fmt.Errorf("invalid reading payload: %w", err)
	}

	if !s.dedup.ShouldProcess(in.MessageID) {
		s.metrics.RecordIngestionError("duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, in.MessageID)
	}

	reading, err := s.recorder.Record(ctx, &in)
	if err != nil {
		// only stored readings count as seen; a retry must reach the store
		s.dedup.Forget(in.MessageID)
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordIngestionError("validation_error")
		} else {
			s.metrics.RecordIngestionError("store_error")
		}
		return err
	}

	s.logger.Debug(ctx, "[MQTT_READING] Reading received", logging.Fields{
		"reading_id": reading.ID,
		"message_id": in.MessageID,
	})
	return nil
}
