// Package notify publishes job reports to an MQTT broker.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	tasm "github.com/apperception-db/TASM"
	"github.com/apperception-db/TASM/internal/config"
)

// Notifier publishes msgpack-encoded job reports.
type Notifier struct {
	cfg    *config.Config
	Client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewNotifier creates a notifier for cfg.MQTT. Call Connect before Publish.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// Connect establishes connection to the MQTT broker
func (n *Notifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(n.cfg.MQTT.Broker))
	opts.SetClientID(n.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		slog.Info("notify: mqtt connection established",
			"broker", n.cfg.MQTT.Broker,
			"client_id", n.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		slog.Warn("notify: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", n.cfg.MQTT.Broker,
		)
	}

	n.Client = mqtt.NewClient(opts)

	slog.Info("notify: connecting to mqtt broker", "broker", n.cfg.MQTT.Broker)

	token := n.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("notify: mqtt connection timeout")
	case <-ctx.Done():
		return fmt.Errorf("notify: mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: mqtt connection failed: %w", err)
	}

	n.setConnected(true)
	return nil
}

// Publish sends the report to the configured topic.
func (n *Notifier) Publish(report *tasm.Report) error {
	if !n.isConnected() {
		n.countError()
		return fmt.Errorf("notify: mqtt not connected")
	}

	payload, err := EncodeReport(report)
	if err != nil {
		n.countError()
		return err
	}

	topic := n.cfg.MQTT.Topic
	token := n.Client.Publish(topic, n.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		n.countError()
		return fmt.Errorf("notify: publish timeout")
	}
	if err := token.Error(); err != nil {
		n.countError()
		return fmt.Errorf("notify: publish failed: %w", err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	slog.Debug("notify: report published",
		"topic", topic,
		"qos", n.cfg.MQTT.QoS,
		"job_id", report.JobID,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection
func (n *Notifier) Disconnect() error {
	if n.Client != nil && n.Client.IsConnected() {
		n.Client.Disconnect(250) // 250ms grace period
		slog.Info("notify: mqtt disconnected")
	}
	n.setConnected(false)
	return nil
}

// Stats contains notifier statistics
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns notifier statistics
func (n *Notifier) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Stats{
		Connected: n.connected,
		Published: n.published,
		Errors:    n.errors,
	}
}

func (n *Notifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *Notifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *Notifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// EncodeReport serializes a report as msgpack.
func EncodeReport(report *tasm.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("notify: nil report")
	}
	payload, err := msgpack.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("notify: encode report: %w", err)
	}
	return payload, nil
}

// DecodeReport parses a msgpack payload produced by EncodeReport.
func DecodeReport(payload []byte) (*tasm.Report, error) {
	var report tasm.Report
	if err := msgpack.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("notify: decode report: %w", err)
	}
	return &report, nil
}

// brokerURL adds the tcp scheme to bare host:port brokers.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
