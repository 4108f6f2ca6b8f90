package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	maxQoS                = 2
)

var (
	// ErrMQTTConnect is returned when the broker cannot be reached.
	ErrMQTTConnect = errors.New("audit: mqtt connection failed")
	// ErrMQTTPublish wraps publish failures and timeouts.
	ErrMQTTPublish = errors.New("audit: mqtt publish failed")
	// ErrMQTTConfig is returned for an unusable broker configuration.
	ErrMQTTConfig = errors.New("audit: invalid mqtt configuration")
)

// MQTTConfig describes the broker audit events are published to.
type MQTTConfig struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to the event type, e.g. "greenhouse/auth/audit".
	TopicPrefix string
	QoS         byte
}

// Publisher is the subset of a paho client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// DialMQTT connects a paho client for cfg.
func DialMQTT(cfg MQTTConfig) (pahomqtt.Client, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("%w: host and port are required", ErrMQTTConfig)
	}
	if cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: qos must be 0, 1 or 2", ErrMQTTConfig)
	}

	opts := pahomqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}
	return client, nil
}

// MQTTSink publishes each event as JSON to <TopicPrefix>/<event_type>.
//
// Publishing runs on the dispatcher goroutine, so a slow broker backs up the
// dispatcher buffer rather than request handlers. Failed publishes are counted
// and reported through OnError.
type MQTTSink struct {
	pub     Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	failed  atomic.Uint64

	// OnError, when set, observes publish failures.
	OnError func(error)
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub Publisher, topicPrefix string, qos byte) *MQTTSink {
	if qos > maxQoS {
		qos = maxQoS
	}
	topicPrefix = strings.TrimRight(strings.TrimSpace(topicPrefix), "/")
	if topicPrefix == "" {
		topicPrefix = "greenauth/audit"
	}
	return &MQTTSink{
		pub:     pub,
		prefix:  topicPrefix,
		qos:     qos,
		timeout: defaultPublishTimeout,
	}
}

// Topic returns the topic an event type is published to.
func (s *MQTTSink) Topic(eventType string) string {
	return s.prefix + "/" + eventType
}

// Emit publishes event as JSON. Publish failures go to OnError.
func (s *MQTTSink) Emit(_ context.Context, event Event) {
	if s == nil || s.pub == nil {
		return
	}
	if err := s.publish(event); err != nil {
		s.failed.Add(1)
		if s.OnError != nil {
			s.OnError(err)
		}
	}
}

// Failed returns the number of events that could not be published.
func (s *MQTTSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

func (s *MQTTSink) publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}

	token := s.pub.Publish(s.Topic(event.EventType), s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrMQTTPublish, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}
	return nil
}
