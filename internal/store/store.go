// Package store provides the key-value Cache Store used for settings, per-day
// timings, the latest-known timings slot and per-location place data.
//
// Values are opaque strings (JSON in practice). No backend offers
// transactions across keys; callers must tolerate a per-day entry that is
// newer or older than the latest slot.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the Cache Store contract. Get reports ok=false on a miss.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// GetJSON reads key and decodes it into v. ok is false on a miss.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
