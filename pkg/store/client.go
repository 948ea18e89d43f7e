// Package store provides the pooled Redis client and typed wrappers for
// the stream, key/value, sorted-set, pub/sub, and scripting operations the
// pattern engines are built on.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamworks/relay/pkg/models"
)

// Client wraps a pooled go-redis client with typed, error-classified
// operations. Safe for concurrent use.
type Client struct {
	rdb         *redis.Client
	callTimeout time.Duration
}

// NewClient creates a store client, configures the connection pool, and
// verifies connectivity with a PING.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, classify("ping", err)
	}

	return &Client{rdb: rdb, callTimeout: cfg.CallTimeout}, nil
}

// NewClientFromRedis wraps an existing go-redis client (useful for testing).
func NewClientFromRedis(rdb *redis.Client, callTimeout time.Duration) *Client {
	return &Client{rdb: rdb, callTimeout: callTimeout}
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis exposes the underlying client for pub/sub subscriptions and tests.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// withTimeout derives the per-call deadline context.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// ---- Stream operations ----

// Append adds fields to a stream and returns the server-assigned entry id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", classify(fmt.Sprintf("xadd %s", stream), err)
	}
	return id, nil
}

// Range reads entries in [start, end], oldest first, up to count.
func (c *Client) Range(ctx context.Context, stream, start, end string, count int64) ([]models.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msgs, err := c.rdb.XRangeN(ctx, stream, start, end, count).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("xrange %s", stream), err)
	}
	return toEntries(msgs), nil
}

// RangeLatest reads the newest count entries, returned oldest first.
func (c *Client) RangeLatest(ctx context.Context, stream string, count int64) ([]models.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msgs, err := c.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("xrevrange %s", stream), err)
	}
	entries := toEntries(msgs)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// CreateGroup creates a consumer group at the given start id, creating the
// stream if missing. An already-existing group is not an error.
func (c *Client) CreateGroup(ctx context.Context, stream, group, start string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !isBusyGroup(err) {
		return classify(fmt.Sprintf("xgroup create %s/%s", stream, group), err)
	}
	return nil
}

// GroupRead reads up to count new entries for (group, consumer). A zero
// block duration performs a non-blocking read; redis.Nil maps to an empty
// result, not an error.
func (c *Client) GroupRead(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]models.Entry, error) {
	readCtx := ctx
	if block <= 0 {
		// go-redis emits BLOCK for any non-negative value (0 blocks
		// forever); a negative value makes the read non-blocking.
		block = -1
		var cancel context.CancelFunc
		readCtx, cancel = c.withTimeout(ctx)
		defer cancel()
	}

	res, err := c.rdb.XReadGroup(readCtx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, classify(fmt.Sprintf("xreadgroup %s/%s", stream, group), err)
	}

	var entries []models.Entry
	for _, sr := range res {
		entries = append(entries, toEntries(sr.Messages)...)
	}
	return entries, nil
}

// Ack acknowledges ids on (stream, group) and returns how many were
// actually removed from the PEL. Acking an id not in the PEL is a no-op.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.XAck(ctx, stream, group, ids...).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("xack %s/%s", stream, group), err)
	}
	return n, nil
}

// Claim reassigns pending ids idle for at least minIdle to consumer,
// incrementing their delivery counts.
func (c *Client) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]models.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	msgs, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("xclaim %s/%s", stream, group), err)
	}
	return toEntries(msgs), nil
}

// Pending returns the group's pending-entries list, oldest first, filtered
// to entries idle for at least minIdle.
func (c *Client) Pending(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]models.PendingInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("xpending %s/%s", stream, group), err)
	}

	infos := make([]models.PendingInfo, len(rows))
	for i, row := range rows {
		infos[i] = models.PendingInfo{
			ID:            row.ID,
			Consumer:      row.Consumer,
			Idle:          row.Idle,
			DeliveryCount: row.RetryCount,
		}
	}
	return infos, nil
}

// NextPending returns the oldest pending entry for (stream, group), or nil
// when the PEL is empty.
func (c *Client) NextPending(ctx context.Context, stream, group string) (*models.PendingInfo, error) {
	infos, err := c.Pending(ctx, stream, group, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return &infos[0], nil
}

// StreamLen returns the number of entries in a stream (0 for a missing key).
func (c *Client) StreamLen(ctx context.Context, stream string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("xlen %s", stream), err)
	}
	return n, nil
}

// Trim caps a stream at maxLen entries, evicting oldest first.
func (c *Client) Trim(ctx context.Context, stream string, maxLen int64) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.XTrimMaxLen(ctx, stream, maxLen).Err(); err != nil {
		return classify(fmt.Sprintf("xtrim %s", stream), err)
	}
	return nil
}

// Delete removes keys of any type. Missing keys are ignored.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return classify("del", err)
	}
	return nil
}

// ---- Key/value and hash operations ----

// SetWithTTL stores a string value with an expiry.
func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return classify(fmt.Sprintf("set %s", key), err)
	}
	return nil
}

// Get reads a string value. Returns ErrNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", classify(fmt.Sprintf("get %s", key), err)
	}
	return val, nil
}

// HSet writes hash fields.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	if err := c.rdb.HSet(ctx, key, values...).Err(); err != nil {
		return classify(fmt.Sprintf("hset %s", key), err)
	}
	return nil
}

// HGetAll reads a whole hash. A missing key yields an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("hgetall %s", key), err)
	}
	return fields, nil
}

// HDel removes hash fields.
func (c *Client) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("hdel %s", key), err)
	}
	return n, nil
}

// ---- Sorted-set operations ----

// ZAdd adds a scored member to a sorted set.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return classify(fmt.Sprintf("zadd %s", key), err)
	}
	return nil
}

// ZRem removes members from a sorted set; returns how many were removed.
func (c *Client) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.ZRem(ctx, key, toAny(members)...).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("zrem %s", key), err)
	}
	return n, nil
}

// ZCard returns the cardinality of a sorted set.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("zcard %s", key), err)
	}
	return n, nil
}

// ZRangeWithScores returns all members with scores, ascending.
func (c *Client) ZRangeWithScores(ctx context.Context, key string) ([]redis.Z, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	zs, err := c.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, classify(fmt.Sprintf("zrange %s", key), err)
	}
	return zs, nil
}

// ---- Pub/sub operations ----

// Publish sends a payload on a channel and returns the subscriber count
// observed at publish time.
func (c *Client) Publish(ctx context.Context, channel, payload string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, classify(fmt.Sprintf("publish %s", channel), err)
	}
	return n, nil
}

// Subscribe opens an exact-channel subscription. The caller owns the
// returned PubSub and must Close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// SubscribePattern opens a glob-pattern subscription. The caller owns the
// returned PubSub and must Close it.
func (c *Client) SubscribePattern(ctx context.Context, patterns ...string) *redis.PubSub {
	return c.rdb.PSubscribe(ctx, patterns...)
}

// ---- Scripting ----

// RunScript evaluates a registered script (EVALSHA with EVAL fallback, so
// repeated startups are an idempotent replace).
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, classify("script", err)
	}
	return res, nil
}

// LoadScript pre-loads a script into the store's script cache so the first
// production call avoids the EVAL fallback.
func (c *Client) LoadScript(ctx context.Context, script *redis.Script) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := script.Load(ctx, c.rdb).Err(); err != nil {
		return classify("script load", err)
	}
	return nil
}

// ---- Server configuration ----

// EnableExpiryNotifications ensures notify-keyspace-events includes
// expired-key events, which the request/reply timeout listener depends on.
// Best effort: managed Redis offerings frequently forbid CONFIG SET, so a
// denial is logged and reported, not fatal.
func (c *Client) EnableExpiryNotifications(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	current, err := c.rdb.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return classify("config get notify-keyspace-events", err)
	}

	flags := current["notify-keyspace-events"]
	if hasExpiryFlags(flags) {
		return nil
	}
	if err := c.rdb.ConfigSet(ctx, "notify-keyspace-events", flags+"Ex").Err(); err != nil {
		slog.Warn("Could not enable keyspace expiry notifications", "error", err)
		return classify("config set notify-keyspace-events", err)
	}
	return nil
}

// hasExpiryFlags reports whether the notify-keyspace-events flag string
// already emits keyevent expired notifications. 'A' covers every event
// class, so "AE" qualifies without an explicit 'x'.
func hasExpiryFlags(flags string) bool {
	return strings.ContainsRune(flags, 'E') &&
		(strings.ContainsRune(flags, 'x') || strings.ContainsRune(flags, 'A'))
}

// ---- helpers ----

func toEntries(msgs []redis.XMessage) []models.Entry {
	entries := make([]models.Entry, len(msgs))
	for i, msg := range msgs {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprint(v)
			}
		}
		entries[i] = models.Entry{ID: msg.ID, Fields: fields}
	}
	return entries
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
