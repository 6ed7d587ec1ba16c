// Package notify implements notification delivery for NOTIFY actions.
// Downstream channels (email, push, in-app) hang off the webhook sink; the
// engine itself only fans out to configured sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Notification is one NOTIFY action payload.
type Notification struct {
	DeliveryID     string         `json:"deliveryId"`
	TenantID       string         `json:"tenantId"`
	RuleID         string         `json:"ruleId,omitempty"`
	Channel        string         `json:"channel,omitempty"`
	Message        string         `json:"message"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// SinkConfig selects and configures a sink.
type SinkConfig struct {
	Type string `yaml:"type"` // console | file | webhook
	URL  string `yaml:"url,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// Dispatcher fans a notification out to all configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from sink configs. With no configs it
// defaults to a single console sink.
func NewDispatcher(configs []SinkConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	if len(d.sinks) == 0 {
		d.sinks = append(d.sinks, NewConsoleSink())
	}
	return d, nil
}

// Send delivers the notification to every sink. The first sink error is
// returned so the action executor can classify and retry the delivery.
// Each call gets a fresh delivery ID; the idempotency key is what stays
// stable across retries.
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	if n.DeliveryID == "" {
		n.DeliveryID = uuid.NewString()
	}
	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, n); err != nil {
			d.logger.Error("notification send failed", "sink", sink.Name(), "rule", n.RuleID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
		}
	}
	return firstErr
}

func newSink(cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "console", "":
		return NewConsoleSink(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file sink requires a path")
		}
		return NewFileSink(cfg.Path)
	case "webhook":
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook sink requires a URL")
		}
		return NewWebhookSink(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
