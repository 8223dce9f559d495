package middleware

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/logger"
)

// Connection outcomes
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
	StatusClosed   = "closed"
)

// AccessLogEntry records how one client connection ended
type AccessLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	RemoteAddr string    `json:"remote_addr"`
	SessionID  int64     `json:"session_id,omitempty"`
	Kind       string    `json:"kind,omitempty"` // status, login, legacy_ping, http
	Username   string    `json:"username,omitempty"`
	UUID       string    `json:"uuid,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	Switches   int       `json:"switches,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

func (e *AccessLogEntry) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("remote_addr", e.RemoteAddr),
		zap.Int64("duration_ms", e.DurationMs),
		zap.String("status", e.Status),
	}
	if e.TraceID != "" {
		fields = append(fields, zap.String("trace_id", e.TraceID), zap.String("span_id", e.SpanID))
	}
	if e.SessionID != 0 {
		fields = append(fields, zap.Int64("session_id", e.SessionID))
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("kind", e.Kind))
	}
	if e.Username != "" {
		fields = append(fields, zap.String("username", e.Username))
	}
	if e.UUID != "" {
		fields = append(fields, zap.String("uuid", e.UUID))
	}
	if e.Backend != "" {
		fields = append(fields, zap.String("backend", e.Backend))
	}
	if e.Switches > 0 {
		fields = append(fields, zap.Int("switches", e.Switches))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	return fields
}

// AccessLogger writes access log entries in batches off the connection goroutines
type AccessLogger struct {
	logChan       chan *AccessLogEntry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopOnce      sync.Once
	stopChan      chan struct{}
}

var (
	globalMu           sync.Mutex
	globalAccessLogger *AccessLogger
)

// NewAccessLogger starts a batching logger. It flushes after batchSize entries
// or flushInterval, whichever comes first.
func NewAccessLogger(batchSize int, flushInterval time.Duration) *AccessLogger {
	al := &AccessLogger{
		logChan:       make(chan *AccessLogEntry, batchSize*2),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
	}
	al.wg.Add(1)
	go al.processBatches()
	return al
}

// InitAccessLogger installs the global access logger
func InitAccessLogger(batchSize int, flushInterval time.Duration) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalAccessLogger == nil {
		globalAccessLogger = NewAccessLogger(batchSize, flushInterval)
	}
}

// LogAccess records an entry on the global logger. It never blocks: entries
// are logged directly when no logger is installed and dropped when the
// buffer is full.
func LogAccess(ctx context.Context, entry *AccessLogEntry) {
	globalMu.Lock()
	al := globalAccessLogger
	globalMu.Unlock()

	if al == nil {
		stamp(ctx, entry)
		logger.L.Info("access_log", entry.fields()...)
		return
	}
	al.Log(ctx, entry)
}

// Log queues an entry
func (al *AccessLogger) Log(ctx context.Context, entry *AccessLogEntry) {
	stamp(ctx, entry)
	select {
	case al.logChan <- entry:
	default:
		logger.L.Warn("access log buffer full, dropping entry",
			zap.String("remote_addr", entry.RemoteAddr))
	}
}

func stamp(ctx context.Context, entry *AccessLogEntry) {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
}

func (al *AccessLogger) processBatches() {
	defer al.wg.Done()

	batch := make([]*AccessLogEntry, 0, al.batchSize)
	ticker := time.NewTicker(al.flushInterval)
	defer ticker.Stop()

	flush := func() {
		for _, e := range batch {
			logger.L.Info("access_log", e.fields()...)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-al.stopChan:
			// drain whatever was queued before stop
			for {
				select {
				case e := <-al.logChan:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-al.logChan:
			batch = append(batch, e)
			if len(batch) >= al.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop flushes pending entries and stops the batch goroutine
func (al *AccessLogger) Stop() {
	al.stopOnce.Do(func() { close(al.stopChan) })
	al.wg.Wait()
}

// ShutdownAccessLogger stops the global access logger
func ShutdownAccessLogger() {
	globalMu.Lock()
	al := globalAccessLogger
	globalAccessLogger = nil
	globalMu.Unlock()
	if al != nil {
		al.Stop()
	}
}
