package hybridcache

import "errors"

// ErrTypeMismatch is returned by the generic Get helper when a cached
// value exists but is not assignable to the requested type.
var ErrTypeMismatch = errors.New("hybridcache: cached value has a different type than requested")
