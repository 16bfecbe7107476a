package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// CallFunc dispatches one call_kw request.
type CallFunc func(ctx context.Context, c *Call) (json.RawMessage, error)

// Middleware wraps a CallFunc.
type Middleware func(next CallFunc) CallFunc

// Chain wraps final with mws so that mws[0] runs outermost.
func Chain(final CallFunc, mws ...Middleware) CallFunc {
	handler := final
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		handler = mws[i](handler)
	}
	return handler
}

// reauthOnExpiry recovers from an expired session exactly once: it discards
// the session, logs in again with the original credentials, and retries the
// call. Any error from the retry, including a second expiry, propagates.
// Callers must hold t.mu.
func (t *Transport) reauthOnExpiry(next CallFunc) CallFunc {
	return func(ctx context.Context, c *Call) (json.RawMessage, error) {
		raw, err := next(ctx, c)
		if !isExpired(err) {
			return raw, err
		}

		t.logger.Warn("session expired, re-authenticating",
			"model", c.Model,
			"method", c.Method,
		)
		t.session.invalidate()
		if authErr := t.authenticateLocked(ctx); authErr != nil {
			t.tel.RecordReauth(ctx, false)
			return nil, &SessionExpiredError{Err: authErr}
		}
		t.tel.RecordReauth(ctx, true)

		raw, err = next(ctx, c)
		if isExpired(err) {
			t.session.invalidate()
			return nil, &SessionExpiredError{Err: err}
		}
		return raw, err
	}
}

// logCalls emits one debug record per dispatch.
func (t *Transport) logCalls(next CallFunc) CallFunc {
	return func(ctx context.Context, c *Call) (json.RawMessage, error) {
		start := time.Now()
		raw, err := next(ctx, c)
		attrs := []any{
			"model", c.Model,
			"method", c.Method,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			t.logger.Debug("call failed", append(attrs, "error", t.tel.MaskText(err.Error()))...)
		} else {
			t.logger.Debug("call", append(attrs, "bytes", len(raw))...)
		}
		return raw, err
	}
}

func isExpired(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Fault.Expired()
}
