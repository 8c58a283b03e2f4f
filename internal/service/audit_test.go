package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/database/dbtest"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/queue"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/service"
)

// gatedPublisher blocks every Publish until release is closed.
type gatedPublisher struct {
	release   chan struct{}
	published atomic.Int32
}

func (p *gatedPublisher) Publish(ctx context.Context, _ queue.SecurityEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.published.Add(1)
	return nil
}

func TestAuditRecordDoesNotBlockOnSlowPublisher(t *testing.T) {
	pub := &gatedPublisher{release: make(chan struct{})}
	audit := service.NewAuditLogger(repository.NewAuditRepo(dbtest.New(t)), pub, discardLogger(),
		service.WithPublishBuffer(2))

	const events = 6
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < events; i++ {
			audit.Record(context.Background(), service.AuditEvent{Action: model.ActionUserLoginFailed, Meta: meta})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked behind the publisher")
	}

	close(pub.release)
	require.NoError(t, audit.Close(context.Background()))

	published := int(pub.published.Load())
	assert.GreaterOrEqual(t, published, 2)
	assert.LessOrEqual(t, published, 3)
	assert.EqualValues(t, events-published, audit.Dropped())
}

func TestAuditCloseFlushesBufferedEvents(t *testing.T) {
	pub := &recordingPublisher{events: make(chan queue.SecurityEvent, 8)}
	db := dbtest.New(t)
	audit := service.NewAuditLogger(repository.NewAuditRepo(db), pub, discardLogger())

	for _, a := range []model.AuditAction{model.ActionUserLogin, model.ActionUserLogout, model.ActionTokenRejected} {
		audit.Record(context.Background(), service.AuditEvent{Action: a, Meta: meta})
	}
	require.NoError(t, audit.Close(context.Background()))
	assert.Len(t, pub.events, 3)
	assert.Zero(t, audit.Dropped())

	// Events after shutdown still reach the database but not the publisher.
	audit.Record(context.Background(), service.AuditEvent{Action: model.ActionUserLogin, Meta: meta})
	assert.EqualValues(t, 1, audit.Dropped())
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM audit_logs").Scan(&n))
	assert.Equal(t, 4, n)

	require.NoError(t, audit.Close(context.Background()))
}

func TestAuditCloseWithoutPublisher(t *testing.T) {
	audit := service.NewAuditLogger(repository.NewAuditRepo(dbtest.New(t)), nil, discardLogger())
	audit.Record(context.Background(), service.AuditEvent{Action: model.ActionUserLogin, Meta: meta})
	require.NoError(t, audit.Close(context.Background()))
	assert.Zero(t, audit.Dropped())
}
