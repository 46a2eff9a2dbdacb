package cache

import "errors"

// ErrInvalidArgument is returned for empty keys, an empty key list or
// pattern, or empty bulk inputs. It always surfaces,
// regardless of ThrowIfDistributedCacheError.
var ErrInvalidArgument = errors.New("cache: invalid argument")

// ErrCacheClosed is returned by operations attempted after Close.
var ErrCacheClosed = errors.New("cache: engine is closed")

// ErrInvalidConfig is returned by Options.Validate.
var ErrInvalidConfig = errors.New("cache: invalid configuration")
