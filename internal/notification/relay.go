package notification

import (
	"context"
	"fmt"

	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/settlr/internal/observability/metrics"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRelayBatch = 50

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Publisher  domain.Publisher
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Relay moves unpublished outbox rows to the publisher.
type Relay struct {
	db         *gorm.DB
	log        *zap.Logger
	publisher  domain.Publisher
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewRelay(p RelayParams) *Relay {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Relay{
		db:         p.DB,
		log:        p.Log.Named("notification.relay"),
		publisher:  p.Publisher,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// PublishPending publishes up to limit events and returns how many were
// delivered. A row is marked published only after its publish succeeds;
// the first failure stops the batch and is returned.
func (r *Relay) PublishPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultRelayBatch
	}

	published := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []domain.SettlementEvent
		query := dbutil.ForUpdateSkipLocked(tx, `SELECT id, owner_id, event_type, payload, dedupe_key, published, published_at, created_at
			 FROM settlement_events
			 WHERE published = ?
			 ORDER BY created_at ASC, id ASC
			 LIMIT ?`)
		if err := tx.Raw(query, false, limit).Scan(&events).Error; err != nil {
			return err
		}

		for _, event := range events {
			if err := r.publisher.Publish(ctx, event); err != nil {
				r.log.Warn("settlement event publish failed",
					zap.String("event_id", event.ID.String()),
					zap.String("event_type", event.EventType),
					zap.Error(err),
				)
				return fmt.Errorf("%w: %v", obsmetrics.ErrPublish, err)
			}
			if err := tx.Exec(
				`UPDATE settlement_events SET published = ?, published_at = ? WHERE id = ?`,
				true,
				r.clock.Now(),
				event.ID,
			).Error; err != nil {
				return err
			}
			published++
			if r.obsMetrics != nil {
				r.obsMetrics.RecordEventPublished(ctx, event.EventType)
			}
		}
		return nil
	})
	if err != nil {
		// Rows published before the failure were rolled back and will be re-sent.
		return 0, err
	}
	return published, nil
}
