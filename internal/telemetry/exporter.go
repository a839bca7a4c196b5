// Package telemetry batches trading-loss progress events and posts them to a webhook.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/fetch"
	"github.com/yourorg/vault-bff/internal/progress"
)

// Config controls batching and delivery
type Config struct {
	Enabled        bool
	BatchSize      int
	ExportInterval time.Duration
	WebhookURL     string
	WebhookAPIKey  string
}

// Event is a progress event tagged with the request it belongs to
type Event struct {
	RequestID string `json:"requestId"`
	Portfolio string `json:"portfolio"`
	progress.Event
}

// maxQueuedBatches bounds how many batches are held while the webhook is failing
const maxQueuedBatches = 10

type batch struct {
	Events     []Event `json:"events"`
	ExportTime string  `json:"export_time"`
	Count      int     `json:"count"`
}

// Exporter flushes when the batch is full or on every interval tick.
// A disabled exporter drops events.
type Exporter struct {
	config     Config
	httpClient *http.Client

	mutex      sync.Mutex
	pending    []Event
	maxPending int
	lastExport time.Time
	exported   int
	failures   int
	dropped    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewExporter starts the background flush loop when enabled
func NewExporter(cfg Config, httpClient *http.Client) *Exporter {
	e := &Exporter{config: cfg}
	if !cfg.Enabled || cfg.WebhookURL == "" {
		e.config.Enabled = false
		return e
	}
	if cfg.BatchSize <= 0 {
		e.config.BatchSize = 100
	}
	if cfg.ExportInterval <= 0 {
		e.config.ExportInterval = time.Minute
	}
	if httpClient == nil {
		httpClient = fetch.DefaultHTTPClient()
	}
	e.httpClient = httpClient
	e.pending = make([]Event, 0, e.config.BatchSize)
	e.maxPending = e.config.BatchSize * maxQueuedBatches

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.periodicExport(ctx)

	logrus.WithFields(logrus.Fields{
		"batch_size": e.config.BatchSize,
		"interval":   e.config.ExportInterval.String(),
	}).Info("Telemetry exporter started")
	return e
}

// Sink returns a progress sink that tags events with the request and portfolio
func (e *Exporter) Sink(requestID, portfolio string) progress.Sink {
	if e == nil || !e.config.Enabled {
		return progress.Noop
	}
	return func(key string, delta float64) {
		e.Add(Event{
			RequestID: requestID,
			Portfolio: portfolio,
			Event:     progress.Event{Key: key, DeltaUSD: delta, At: time.Now().UTC()},
		})
	}
}

// Add queues events and flushes asynchronously once the batch is full
func (e *Exporter) Add(events ...Event) {
	if e == nil || !e.config.Enabled || len(events) == 0 {
		return
	}
	e.mutex.Lock()
	e.pending = append(e.pending, events...)
	full := len(e.pending) >= e.config.BatchSize
	e.mutex.Unlock()

	if full {
		go e.flush(context.Background())
	}
}

func (e *Exporter) periodicExport(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Exporter) flush(ctx context.Context) {
	e.mutex.Lock()
	if len(e.pending) == 0 {
		e.mutex.Unlock()
		return
	}
	events := e.pending
	e.pending = make([]Event, 0, e.config.BatchSize)
	e.mutex.Unlock()

	if err := e.post(ctx, events); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"events": len(events)}).Error("Failed to export telemetry")
		e.requeue(events)
		return
	}

	e.mutex.Lock()
	e.lastExport = time.Now()
	e.exported += len(events)
	e.mutex.Unlock()
	logrus.WithFields(logrus.Fields{"events": len(events)}).Debug("Exported telemetry")
}

// requeue puts a failed batch back ahead of newer events. Past maxPending the
// oldest events are dropped and counted.
func (e *Exporter) requeue(events []Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.failures++
	queued := make([]Event, 0, len(events)+len(e.pending))
	queued = append(queued, events...)
	queued = append(queued, e.pending...)
	if e.maxPending > 0 && len(queued) > e.maxPending {
		over := len(queued) - e.maxPending
		e.dropped += over
		queued = queued[over:]
	}
	e.pending = queued
}

func (e *Exporter) post(ctx context.Context, events []Event) error {
	headers := map[string]string{}
	if e.config.WebhookAPIKey != "" {
		headers["Authorization"] = "Bearer " + e.config.WebhookAPIKey
	}
	return fetch.PostJSON(ctx, e.httpClient, e.config.WebhookURL, headers, batch{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}, nil)
}

// Stop ends the flush loop and exports what is left
func (e *Exporter) Stop() {
	if e == nil || !e.config.Enabled {
		return
	}
	e.cancel()
	<-e.done
	e.flush(context.Background())
}

// Status reports batching state for the health endpoint
func (e *Exporter) Status() map[string]interface{} {
	if e == nil {
		return map[string]interface{}{"enabled": false}
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	status := map[string]interface{}{
		"enabled":        e.config.Enabled,
		"batch_size":     e.config.BatchSize,
		"current_batch":  len(e.pending),
		"exported":       e.exported,
		"failed_exports": e.failures,
		"dropped":        e.dropped,
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.Format(time.RFC3339)
	}
	return status
}
