package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	cfg "github.com/veritime/attendance-service/internal/config"
)

// KafkaAuditShipper publishes punch and credential audit events
// asynchronously. Events are dropped on backpressure rather than blocking
// the verification pipeline.
type KafkaAuditShipper struct {
	cfg    cfg.KafkaAuditConfig
	wPunch *kafka.Writer
	wCred  *kafka.Writer
	ch     chan any
	stop   chan struct{}
}

func NewKafkaAuditShipper(cfgIn cfg.KafkaAuditConfig) (*KafkaAuditShipper, error) {
	c := cfgIn
	if !c.Enabled {
		return &KafkaAuditShipper{cfg: c, ch: make(chan any), stop: make(chan struct{})}, nil
	}
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 2 * time.Second
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.BatchSize * 4
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	tr := &kafka.Transport{
		DialTimeout: c.DialTimeout,
	}
	if c.TLS {
		tr.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var wPunch, wCred *kafka.Writer
	if c.TopicPunch != "" {
		wPunch = newWriter(c, tr, c.TopicPunch)
	}
	if c.TopicCred != "" {
		wCred = newWriter(c, tr, c.TopicCred)
	}

	return &KafkaAuditShipper{
		cfg:    c,
		wPunch: wPunch,
		wCred:  wCred,
		ch:     make(chan any, c.QueueCapacity),
		stop:   make(chan struct{}),
	}, nil
}

func newWriter(c cfg.KafkaAuditConfig, tr *kafka.Transport, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Transport:              tr,
		AllowAutoTopicCreation: false,
		Async:                  true,
		BatchTimeout:           c.FlushEvery,
		BatchSize:              c.BatchSize,
		WriteTimeout:           c.WriteTimeout,
	}
}

func (s *KafkaAuditShipper) Start() {
	if !s.cfg.Enabled {
		return
	}
	go s.loop()
}

func (s *KafkaAuditShipper) Stop(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	close(s.stop)
	drain := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-s.ch:
			_ = s.dispatch(ev)
		case <-drain:
			if s.wPunch != nil {
				_ = s.wPunch.Close()
			}
			if s.wCred != nil {
				_ = s.wCred.Close()
			}
			return
		}
	}
}

// Publish queues an event without blocking.
func (s *KafkaAuditShipper) Publish(ev any) {
	if !s.cfg.Enabled {
		return
	}
	select {
	case s.ch <- ev:
	default:
		// drop on backpressure
	}
}

func (s *KafkaAuditShipper) loop() {
	for {
		select {
		case ev := <-s.ch:
			_ = s.dispatch(ev)
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					_ = s.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *KafkaAuditShipper) dispatch(ev any) error {
	now := time.Now().UTC()
	m := map[string]any{}
	b, _ := json.Marshal(ev)
	_ = json.Unmarshal(b, &m)
	if _, ok := m["@timestamp"]; !ok {
		m["@timestamp"] = now
	}
	payload, _ := json.Marshal(m)

	key := func(field string) []byte {
		if v, ok := m[field]; ok && v != nil {
			if str, ok := v.(string); ok && str != "" {
				return []byte(str)
			}
		}
		return nil
	}

	msg := kafka.Message{
		Key:   key("employee_id"),
		Value: payload,
		Time:  now,
	}

	switch ev.(type) {
	case PunchAuditEvent:
		if s.wPunch == nil {
			return nil
		}
		return s.wPunch.WriteMessages(context.Background(), msg)
	case CredentialAuditEvent:
		if s.wCred == nil {
			return nil
		}
		return s.wCred.WriteMessages(context.Background(), msg)
	default:
		if s.wPunch != nil {
			return s.wPunch.WriteMessages(context.Background(), msg)
		}
	}
	return nil
}
