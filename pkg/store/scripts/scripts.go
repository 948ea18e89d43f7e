// Package scripts holds the server-side atomic procedures and the typed
// parsers for their replies.
//
// Scripts are embedded at compile time and wrapped in redis.Script, which
// runs EVALSHA with an EVAL fallback — re-registration on startup is
// therefore an idempotent replace.
package scripts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed read_claim_or_dlq.lua
var readClaimOrDLQSrc string

//go:embed route_message.lua
var routeMessageSrc string

//go:embed request.lua
var requestSrc string

//go:embed response.lua
var responseSrc string

//go:embed schedule_poll.lua
var schedulePollSrc string

// The registered script handles. Each is safe for concurrent use.
var (
	ReadClaimOrDLQ = redis.NewScript(readClaimOrDLQSrc)
	RouteMessage   = redis.NewScript(routeMessageSrc)
	Request        = redis.NewScript(requestSrc)
	Response       = redis.NewScript(responseSrc)
	SchedulePoll   = redis.NewScript(schedulePollSrc)
)

// All returns every script handle, in registration order.
func All() []*redis.Script {
	return []*redis.Script{ReadClaimOrDLQ, RouteMessage, Request, Response, SchedulePoll}
}

// Loader abstracts the store client's script pre-loading.
type Loader interface {
	LoadScript(ctx context.Context, script *redis.Script) error
}

// LoadAll pre-loads every script into the store's script cache.
func LoadAll(ctx context.Context, l Loader) error {
	for i, s := range All() {
		if err := l.LoadScript(ctx, s); err != nil {
			return fmt.Errorf("loading script %d of %d: %w", i+1, len(All()), err)
		}
	}
	return nil
}
