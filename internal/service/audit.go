package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/queue"
	"github.com/iliyamo/admin-auth/internal/repository"
)

// sideEffectTimeout bounds writes that must outlive a cancelled request.
const sideEffectTimeout = 5 * time.Second

// DefaultPublishBuffer is how many security events may wait for the
// publisher before new ones are dropped.
const DefaultPublishBuffer = 256

// AuditStore appends entries to the audit trail.
type AuditStore interface {
	Insert(ctx context.Context, e model.AuditLogEntry) (uint64, error)
	List(ctx context.Context, f repository.AuditFilter) ([]model.AuditLogEntry, error)
}

// EventPublisher forwards audit events to an external consumer.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SecurityEvent) error
}

// RequestMeta is the client context attached to every audit entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AuditEvent describes one security-relevant action.
type AuditEvent struct {
	UserID       *uint64
	Action       model.AuditAction
	ResourceType string
	ResourceID   *uint64
	OldValues    any
	NewValues    any
	Meta         RequestMeta
}

// AuditLogger records audit events.  A failed write is logged and swallowed:
// the audited operation has already happened and must not be undone.
//
// Events for the publisher go through a bounded buffer drained by a single
// worker, so a burst of logins never fans out into a burst of broker dials.
// When the buffer is full the event is dropped and counted.
type AuditLogger struct {
	store     AuditStore
	publisher EventPublisher
	log       *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	closed  bool
	pending chan queue.SecurityEvent
	done    chan struct{}
	dropped atomic.Uint64
}

// AuditOption tunes an AuditLogger.
type AuditOption func(*auditOptions)

type auditOptions struct {
	buffer int
}

// WithPublishBuffer sets the capacity of the publish buffer.
func WithPublishBuffer(n int) AuditOption {
	return func(o *auditOptions) { o.buffer = n }
}

// NewAuditLogger returns a logger writing to store.  publisher may be nil;
// when it is not, a worker is started and Close must be called on shutdown.
func NewAuditLogger(store AuditStore, publisher EventPublisher, log *slog.Logger, opts ...AuditOption) *AuditLogger {
	if log == nil {
		log = slog.Default()
	}
	o := auditOptions{buffer: DefaultPublishBuffer}
	for _, fn := range opts {
		fn(&o)
	}
	if o.buffer < 1 {
		o.buffer = 1
	}
	a := &AuditLogger{
		store:     store,
		publisher: publisher,
		log:       log.With("component", "audit"),
		now:       defaultClock,
		done:      make(chan struct{}),
	}
	if publisher == nil {
		close(a.done)
		return a
	}
	a.pending = make(chan queue.SecurityEvent, o.buffer)
	go a.publishLoop()
	return a
}

// WithClock replaces the timestamp source.
func (a *AuditLogger) WithClock(now func() time.Time) *AuditLogger {
	a.now = now
	return a
}

// Record writes ev.  It is synchronous for the database and asynchronous
// for the publisher, which receives it through the bounded buffer.
func (a *AuditLogger) Record(ctx context.Context, ev AuditEvent) {
	entry := model.AuditLogEntry{
		UserID:     ev.UserID,
		Action:     ev.Action,
		ResourceID: ev.ResourceID,
		OldValues:  a.marshal(ev.OldValues),
		NewValues:  a.marshal(ev.NewValues),
		IPAddress:  ev.Meta.IPAddress,
		UserAgent:  ev.Meta.UserAgent,
		CreatedAt:  a.now(),
	}
	if ev.ResourceType != "" {
		rt := ev.ResourceType
		entry.ResourceType = &rt
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	id, err := a.store.Insert(wctx, entry)
	if err != nil {
		a.log.ErrorContext(ctx, "audit write failed",
			"action", string(ev.Action), "user_id", derefID(ev.UserID), "error", err)
	}

	if a.publisher == nil {
		return
	}
	msg := queue.SecurityEvent{
		EventID:        uuid.NewString(),
		AuditID:        id,
		UserID:         ev.UserID,
		Action:         string(ev.Action),
		ResourceType:   ev.ResourceType,
		ResourceID:     ev.ResourceID,
		IPAddress:      ev.Meta.IPAddress,
		UserAgent:      ev.Meta.UserAgent,
		OccurredAt:     entry.CreatedAt.Format(time.RFC3339),
		DeliveryFailed: err != nil,
	}
	a.enqueue(msg)
}

func (a *AuditLogger) enqueue(msg queue.SecurityEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		a.log.Warn("audit event dropped after shutdown", "action", msg.Action)
		return
	}
	select {
	case a.pending <- msg:
	default:
		a.dropped.Add(1)
		a.log.Warn("audit event dropped, publish buffer full", "action", msg.Action)
	}
}

func (a *AuditLogger) publishLoop() {
	defer close(a.done)
	for msg := range a.pending {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		if err := a.publisher.Publish(ctx, msg); err != nil {
			a.log.Warn("audit event not published", "action", msg.Action, "error", err)
		}
		cancel()
	}
}

// Dropped reports how many events never reached the publisher.
func (a *AuditLogger) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting events and waits until the buffered ones have been
// handed to the publisher, or until ctx ends.  It is safe to call twice.
func (a *AuditLogger) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed && a.pending != nil {
		close(a.pending)
	}
	a.closed = true
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns recent entries for the admin view.
func (a *AuditLogger) List(ctx context.Context, f repository.AuditFilter) ([]model.AuditLogEntry, error) {
	entries, err := a.store.List(ctx, f)
	if err != nil {
		return nil, internalError(err)
	}
	return entries, nil
}

func (a *AuditLogger) marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		a.log.Warn("audit payload not serializable", "error", err)
		return nil
	}
	return b
}

func derefID(id *uint64) uint64 {
	if id == nil {
		return 0
	}
	return *id
}
