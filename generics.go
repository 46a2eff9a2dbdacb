package hybridcache

import (
	"context"

	"github.com/relaycache/hybridcache/cache"
)

// Get retrieves key and decodes it into T. Unlike the any-typed
// Cache.Get/TryGet, a value that had to cross Redis or a bus
// warm-sync apply still comes back as T rather than a generic
// map[string]any or []any — Get passes a *T down as a decode target
// so the engine unmarshals straight into the caller's real type. It
// returns false, without error, for an ordinary miss; a value
// present locally under a different type than requested is reported
// as ErrTypeMismatch.
func Get[T any](ctx context.Context, c Cache, key string, opts ...GetOption) (T, bool, error) {
	var zero T

	opts = append(opts, cache.DecodeInto(&zero))
	v, found, err := c.TryGet(ctx, key, opts...)
	if err != nil || !found {
		return zero, found, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, false, ErrTypeMismatch
	}
	return typed, true, nil
}

// Set stores a typed value exactly as cache.Engine.Set would.
func Set[T any](ctx context.Context, c Cache, key string, value T, opts ...SetOption) error {
	return c.Set(ctx, key, value, opts...)
}
