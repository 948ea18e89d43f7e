package store

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/streamworks/relay/pkg/relayerr"
)

// ErrNotFound is returned when a requested key, group, or entry does not exist.
var ErrNotFound = relayerr.New(relayerr.KindNotFound, "not found")

// classify translates raw go-redis failures into the relayerr taxonomy.
// op names the failed store operation for log context.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, redis.Nil):
		return relayerr.Wrap(relayerr.KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return relayerr.Wrap(relayerr.KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return relayerr.Wrap(relayerr.KindTimeout, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return relayerr.Wrap(relayerr.KindConnectivity, op, err)
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, redis.ErrPoolTimeout) {
		return relayerr.Wrap(relayerr.KindConnectivity, op, err)
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOGROUP"):
		return relayerr.Wrap(relayerr.KindNotFound, op, err)
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return relayerr.Wrap(relayerr.KindProtocol, op, err)
	case strings.Contains(msg, "user_script") || strings.HasPrefix(msg, "ERR Error running script"):
		return relayerr.Wrap(relayerr.KindScript, op, err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout"):
		return relayerr.Wrap(relayerr.KindConnectivity, op, err)
	}

	return relayerr.Wrap(relayerr.KindProtocol, op, err)
}

// isBusyGroup reports whether err is the XGROUP CREATE "group already
// exists" reply, which callers treat as success.
func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
