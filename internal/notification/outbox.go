package notification

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/notification/domain"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidEvent = errors.New("invalid_event")

type OutboxParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Outbox struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{
		db:    p.DB,
		log:   p.Log.Named("notification.outbox"),
		genID: p.GenID,
	}
}

// Emit records event on tx. A second emit with the same dedupe key is a
// no-op and reports false.
func (o *Outbox) Emit(ctx context.Context, tx *gorm.DB, event domain.Event) (bool, error) {
	eventType := strings.TrimSpace(event.Type)
	dedupeKey := strings.TrimSpace(event.DedupeKey)
	if eventType == "" || dedupeKey == "" || event.CreatedAt.IsZero() {
		return false, ErrInvalidEvent
	}
	if tx == nil {
		tx = o.db
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		payload[key] = value
	}
	payload["event_type"] = eventType

	res := tx.WithContext(ctx).Exec(
		dbutil.InsertIgnoringDuplicate(tx,
			`INSERT INTO settlement_events (id, owner_id, event_type, payload, dedupe_key, published, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"dedupe_key",
		),
		o.genID.Generate(),
		event.OwnerID,
		eventType,
		payload,
		dedupeKey,
		false,
		event.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		o.log.Debug("duplicate settlement event ignored",
			zap.String("event_type", eventType),
			zap.String("dedupe_key", dedupeKey),
		)
		return false, nil
	}
	return true, nil
}
