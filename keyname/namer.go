// Package keyname implements the Key Namer: the pure-function component
// that prefixes every user key with a shared instance-group name so that
// multiple logical caches can coexist on one Redis deployment.
package keyname

import "strings"

// sentinelSuffix is the reserved literal suffix meaning "drop the entire
// local tier". It is never stored in Redis and never returned to a caller.
const sentinelSuffix = "*FLUSHDB*"

// Namer namespaces user keys under a shared group name.
type Namer struct {
	group string
}

// New returns a Namer for the given group name.
func New(group string) Namer {
	return Namer{group: group}
}

// Group returns the group name the Namer was constructed with.
func (n Namer) Group() string {
	return n.group
}

// Name returns the namespaced form of a user key: "<group>:<user-key>".
func (n Namer) Name(userKey string) string {
	return n.group + ":" + userKey
}

// ClearAllSentinel returns the reserved namespaced key that means "drop
// the entire local tier" when it appears as the sole key of an
// invalidation message.
func (n Namer) ClearAllSentinel() string {
	return n.group + ":" + sentinelSuffix
}

// IsClearAllSentinel reports whether a namespaced key is this group's
// clear-all sentinel.
func (n Namer) IsClearAllSentinel(namespacedKey string) bool {
	return namespacedKey == n.ClearAllSentinel()
}

// Pattern builds a namespaced scan pattern from a user-supplied pattern
// fragment: it is prefixed with "*" (unless already starting with "*")
// and suffixed with "*" (unless already ending in "*"), then namespaced
// under the group.
func (n Namer) Pattern(userPattern string) string {
	p := userPattern
	if !strings.HasPrefix(p, "*") {
		p = "*" + p
	}
	if !strings.HasSuffix(p, "*") {
		p = p + "*"
	}
	return n.group + ":" + p
}

// InvalidationChannel returns the literal (non-pattern) name of the
// invalidation pub/sub channel for this group: "<group>:invalidate".
func (n Namer) InvalidationChannel() string {
	return n.group + ":invalidate"
}
