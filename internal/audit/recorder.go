// Package audit records every inbound request in the request history.
package audit

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/metrics"
)

// Column widths of the audit_log table.
const (
	maxActionLen    = 100
	maxMethodLen    = 10
	maxEndpointLen  = 255
	maxIPLen        = 100
	maxUserAgentLen = 255
)

// Entry is what the HTTP layer knows about a finished request.
type Entry struct {
	Method    string
	Endpoint  string
	Status    int
	IP        string
	UserAgent string
	Timestamp time.Time
}

// Recorder writes audit records in the background. A failed write is
// logged and counted but never reaches the client.
type Recorder struct {
	store   database.AuditStore
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder creates a recorder on top of an audit store. m may be nil.
func NewRecorder(store database.AuditStore, log logrus.FieldLogger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		log:     log,
		metrics: m,
		timeout: constants.AuditWriteTimeout,
	}
}

// Record schedules e for writing and returns immediately. The write is
// detached from ctx cancellation but keeps its values.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.WithField("endpoint", e.Endpoint).Warn("audit recorder closed, dropping record")
		r.metrics.IncAuditFailures()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	record := toRecord(e)
	go func() {
		defer r.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.store.Append(writeCtx, &record); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"action":   record.Action,
				"endpoint": record.Endpoint,
			}).Error("failed to write audit record")
			r.metrics.IncAuditFailures()
		}
	}()
}

// List returns the most recent records, newest first. A non-positive limit
// uses the default and larger limits are capped.
func (r *Recorder) List(ctx context.Context, limit int) ([]database.AuditRecord, error) {
	return r.store.ListRecent(ctx, ClampLimit(limit))
}

// Close stops accepting records and waits for pending writes.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

// ClampLimit normalizes a requested history size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultHistoryLimit
	}
	return min(limit, constants.MaxHistoryLimit)
}

func toRecord(e Entry) database.AuditRecord {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return database.AuditRecord{
		Action:    truncate(ActionFor(e.Endpoint, e.Method), maxActionLen),
		Method:    truncate(e.Method, maxMethodLen),
		Endpoint:  truncate(e.Endpoint, maxEndpointLen),
		Status:    e.Status,
		IP:        truncate(e.IP, maxIPLen),
		UserAgent: truncate(e.UserAgent, maxUserAgentLen),
		Timestamp: ts.UTC(),
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
