// Package scheduler implements delayed messages: payload hashes indexed by
// a due-time sorted set, and a poller that atomically materializes due
// items to the reminder stream.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

// Storage layout.
const (
	// IndexKey is the sorted set scored by due epoch millis.
	IndexKey = "scheduled.index"

	// payloadKeyPrefix prefixes the member name to form the payload hash
	// key: "scheduled:" + "message:<id>".
	payloadKeyPrefix = "scheduled:"

	// memberPrefix prefixes the id to form the index member.
	memberPrefix = "message:"
)

// Member returns the index member for an id.
func Member(id string) string { return memberPrefix + id }

// PayloadKey returns the payload hash key for an id.
func PayloadKey(id string) string { return payloadKeyPrefix + Member(id) }

// Engine owns scheduled-message CRUD.
type Engine struct {
	store *store.Client
	cfg   config.SchedulerConfig
}

// New creates a scheduler engine.
func New(st *store.Client, cfg config.SchedulerConfig) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// ScheduleInput describes a new or updated scheduled message.
type ScheduleInput struct {
	Title        string
	Description  string
	ScheduledFor int64 // epoch millis
}

func (in ScheduleInput) validate(now time.Time) error {
	if in.Title == "" {
		return relayerr.Validationf("title is required")
	}
	if in.ScheduledFor <= now.UnixMilli() {
		return relayerr.Validationf("scheduledFor must be in the future")
	}
	return nil
}

// Schedule stores a new message and indexes it by due time.
func (e *Engine) Schedule(ctx context.Context, in ScheduleInput) (*models.ScheduledMessage, error) {
	now := time.Now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	msg := models.ScheduledMessage{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Description:  in.Description,
		ScheduledFor: in.ScheduledFor,
		CreatedAt:    now.UnixMilli(),
	}
	if err := e.write(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Get returns one scheduled message or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	fields, err := e.store.HGetAll(ctx, PayloadKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	msg := fromFields(fields)
	return &msg, nil
}

// List returns all pending messages in due order (ties by id, matching the
// index's score-then-member ordering).
func (e *Engine) List(ctx context.Context) ([]models.ScheduledMessage, error) {
	members, err := e.store.ZRangeWithScores(ctx, IndexKey)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.ScheduledMessage, 0, len(members))
	for _, z := range members {
		member, _ := z.Member.(string)
		fields, err := e.store.HGetAll(ctx, payloadKeyPrefix+member)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Dangling index member; the poller prunes these.
			continue
		}
		msgs = append(msgs, fromFields(fields))
	}
	return msgs, nil
}

// Update rewrites an existing message and re-indexes it.
func (e *Engine) Update(ctx context.Context, id string, in ScheduleInput) (*models.ScheduledMessage, error) {
	existing, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(time.Now()); err != nil {
		return nil, err
	}

	msg := models.ScheduledMessage{
		ID:           existing.ID,
		Title:        in.Title,
		Description:  in.Description,
		ScheduledFor: in.ScheduledFor,
		CreatedAt:    existing.CreatedAt,
	}
	if err := e.write(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes a message from the index and its payload hash. The bool
// reports whether it existed.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	n, err := e.store.ZRem(ctx, IndexKey, Member(id))
	if err != nil {
		return false, err
	}
	if err := e.store.Delete(ctx, PayloadKey(id)); err != nil {
		return n > 0, err
	}
	return n > 0, nil
}

// Clear removes every pending message and the index itself.
func (e *Engine) Clear(ctx context.Context) error {
	members, err := e.store.ZRangeWithScores(ctx, IndexKey)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(members)+1)
	for _, z := range members {
		if member, ok := z.Member.(string); ok {
			keys = append(keys, payloadKeyPrefix+member)
		}
	}
	keys = append(keys, IndexKey)
	return e.store.Delete(ctx, keys...)
}

// PendingCount returns the index cardinality.
func (e *Engine) PendingCount(ctx context.Context) (int64, error) {
	return e.store.ZCard(ctx, IndexKey)
}

func (e *Engine) write(ctx context.Context, msg models.ScheduledMessage) error {
	if err := e.store.HSet(ctx, PayloadKey(msg.ID), map[string]string{
		"id":           msg.ID,
		"title":        msg.Title,
		"description":  msg.Description,
		"scheduledFor": strconv.FormatInt(msg.ScheduledFor, 10),
		"createdAt":    strconv.FormatInt(msg.CreatedAt, 10),
	}); err != nil {
		return err
	}
	return e.store.ZAdd(ctx, IndexKey, float64(msg.ScheduledFor), Member(msg.ID))
}

func fromFields(fields map[string]string) models.ScheduledMessage {
	scheduledFor, _ := strconv.ParseInt(fields["scheduledFor"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["createdAt"], 10, 64)
	return models.ScheduledMessage{
		ID:           fields["id"],
		Title:        fields["title"],
		Description:  fields["description"],
		ScheduledFor: scheduledFor,
		CreatedAt:    createdAt,
	}
}
