// Package idempotency remembers the first successful response for an
// Idempotency-Key so a retried request can be answered without repeating
// its side effects.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

var ErrNotFound = errors.New("idempotency: key not found")

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Entry is a stored response.
type Entry struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Store keeps the first entry written for a key. Put on an existing key is a
// no-op.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, e Entry) error
}
