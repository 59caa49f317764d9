package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/settlr/internal/observability/metrics"
	"github.com/smallbiznis/settlr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SettlementEvent
	failOn string
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && event.DedupeKey == p.failOn {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func setupOutbox(t *testing.T) (*Outbox, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	outbox := NewOutbox(OutboxParams{DB: db, Log: zap.NewNop(), GenID: testutil.NewNode(t)})
	return outbox, db
}

func activatedEvent(reference string, at time.Time) domain.Event {
	return domain.Event{
		OwnerID:   7,
		Type:      domain.EventSubscriptionActivated,
		DedupeKey: domain.PaymentDedupeKey(reference),
		Payload:   map[string]any{"reference": reference},
		CreatedAt: at,
	}
}

func TestEmitDeduplicates(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := outbox.Emit(ctx, nil, activatedEvent("REF1", now))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = outbox.Emit(ctx, nil, activatedEvent("REF1", now.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(1) FROM settlement_events`))
}

func TestEmitValidation(t *testing.T) {
	outbox, _ := setupOutbox(t)
	ctx := context.Background()

	event := activatedEvent("REF1", time.Now().UTC())
	event.DedupeKey = ""
	_, err := outbox.Emit(ctx, nil, event)
	require.ErrorIs(t, err, ErrInvalidEvent)

	event = activatedEvent("REF1", time.Time{})
	_, err = outbox.Emit(ctx, nil, event)
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := outbox.Emit(ctx, tx, activatedEvent("REF1", time.Now().UTC())); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), testutil.Count(t, db, `SELECT COUNT(1) FROM settlement_events`))
}

func TestRelayPublishesInOrder(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := outbox.Emit(ctx, nil, activatedEvent("REF1", now))
	require.NoError(t, err)
	_, err = outbox.Emit(ctx, nil, activatedEvent("REF2", now.Add(time.Minute)))
	require.NoError(t, err)

	pub := &recordingPublisher{}
	relay := NewRelay(RelayParams{
		DB:        db,
		Log:       zap.NewNop(),
		Publisher: pub,
		Clock:     clock.NewFakeClock(now.Add(time.Hour)),
	})

	n, err := relay.PublishPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.events, 2)
	assert.Equal(t, "payment:REF1", pub.events[0].DedupeKey)
	assert.Equal(t, "payment:REF2", pub.events[1].DedupeKey)
	assert.Equal(t, "REF1", pub.events[0].Payload["reference"])

	n, err = relay.PublishPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), testutil.Count(t, db, `SELECT COUNT(1) FROM settlement_events WHERE published = ?`, false))
}

func TestRelayFailureKeepsEventsUnpublished(t *testing.T) {
	outbox, db := setupOutbox(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := outbox.Emit(ctx, nil, activatedEvent("REF1", now))
	require.NoError(t, err)
	_, err = outbox.Emit(ctx, nil, activatedEvent("REF2", now.Add(time.Minute)))
	require.NoError(t, err)

	pub := &recordingPublisher{failOn: "payment:REF2"}
	relay := NewRelay(RelayParams{DB: db, Log: zap.NewNop(), Publisher: pub})

	_, err = relay.PublishPending(ctx, 10)
	require.ErrorIs(t, err, obsmetrics.ErrPublish)
	assert.Equal(t, int64(2), testutil.Count(t, db, `SELECT COUNT(1) FROM settlement_events WHERE published = ?`, false))

	pub.failOn = ""
	n, err := relay.PublishPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLogPublisher(t *testing.T) {
	pub := NewLogPublisher(zap.NewNop())
	require.NoError(t, pub.Publish(context.Background(), domain.SettlementEvent{EventType: domain.EventSubscriptionRenewed}))
}
