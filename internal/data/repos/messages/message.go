package messages

import (
	"context"

	"gorm.io/gorm"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// feedLimit bounds the operator message feed; older rows are pruned on
// every append.
const feedLimit = 500

type MessageRepo interface {
	Append(dbc dbctx.Context, msg *types.AppMessage) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.AppMessage, error)
	// Record satisfies realtime.FeedStore.
	Record(ctx context.Context, tone, title, body, source string) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{
		db:  db,
		log: baseLog.With("repo", "MessageRepo"),
	}
}

func (r *messageRepo) Append(dbc dbctx.Context, msg *types.AppMessage) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if msg == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(msg).Error; err != nil {
			return err
		}
		return txx.Exec(`
DELETE FROM app_messages
WHERE id NOT IN (SELECT id FROM app_messages ORDER BY created_at DESC LIMIT ?)`,
			feedLimit,
		).Error
	})
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.AppMessage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > feedLimit {
		limit = feedLimit
	}
	var out []*types.AppMessage
	err := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) Record(ctx context.Context, tone, title, body, source string) error {
	return r.Append(dbctx.Context{Ctx: ctx}, &types.AppMessage{
		Tone:   tone,
		Title:  title,
		Body:   body,
		Source: source,
	})
}
