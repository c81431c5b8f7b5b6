package datadog

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"payagent/internal/config"
	"payagent/internal/logging"
	"payagent/internal/txn/domain"
)

const (
	sinkBuffer    = 256
	maxBatch      = 50
	submitTimeout = 10 * time.Second
)

// Sink forwards lifecycle events as Datadog logs. Events are queued and
// shipped by a single worker so callers never wait on the network; when the
// queue is full the event is dropped with a warning.
type Sink struct {
	client   DatadogInterface
	service  string
	source   string
	hostname string
	logger   *logging.Logger

	mu     sync.Mutex
	closed bool
	events chan datadogV2.HTTPLogItem
	done   chan struct{}
}

// NewSink starts the forwarding worker. Close flushes it.
func NewSink(client DatadogInterface, cfg config.DatadogConfig) *Sink {
	hostname, _ := os.Hostname()
	s := &Sink{
		client:   client,
		service:  cfg.Service,
		source:   cfg.Source,
		hostname: hostname,
		logger:   logging.NewDefaultLogger("datadog").WithPrefix("sink"),
		events:   make(chan datadogV2.HTTPLogItem, sinkBuffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) SessionInvalidated(reason string) {
	s.enqueue("session_invalidated", "warn", map[string]any{"reason": reason})
}

func (s *Sink) AnomalyOpened(anomaly domain.Anomaly) {
	s.enqueue("anomaly_opened", "error", map[string]any{
		"transaction_id": anomaly.TransactionID.String(),
		"from":           string(anomaly.From),
		"to":             string(anomaly.To),
		"observed_at":    anomaly.ObservedAt.UTC().Format(time.RFC3339Nano),
	}, "txn:"+anomaly.TransactionID.String())
}

func (s *Sink) MonitorClosed(id domain.ID, reason string, final domain.Status) {
	s.enqueue("monitor_closed", "info", map[string]any{
		"transaction_id": id.String(),
		"reason":         reason,
		"final_status":   string(final),
	}, "txn:"+id.String())
}

// Close stops accepting events and waits for the queue to drain
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) enqueue(event, level string, attrs map[string]any, tags ...string) {
	attrs["event"] = event
	attrs["level"] = level
	message, err := json.Marshal(attrs)
	if err != nil {
		s.logger.Warn("Failed to encode %s event: %v", event, err)
		return
	}

	item := datadogV2.NewHTTPLogItem(string(message))
	item.SetService(s.service)
	item.SetDdsource(s.source)
	if s.hostname != "" {
		item.SetHostname(s.hostname)
	}
	item.SetDdtags(strings.Join(append([]string{"event:" + event}, tags...), ","))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- *item:
	default:
		s.logger.Warn("Event queue full, dropping %s", event)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for item := range s.events {
		batch := []datadogV2.HTTPLogItem{item}
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		s.submit(batch)
	}
}

func (s *Sink) submit(batch []datadogV2.HTTPLogItem) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if err := s.client.SubmitLogs(ctx, batch); err != nil {
		s.logger.Warn("Failed to forward %d events: %v", len(batch), err)
		return
	}
	s.logger.Debug("Forwarded %d events", len(batch))
}
