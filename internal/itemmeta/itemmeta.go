// Package itemmeta extracts and injects the system properties
// (__version, __updatedAt, __deleted, __createdAt) carried on sync items,
// and formats/parses the ISO-8601 timestamps used for delta tokens and
// system-property values.
package itemmeta

import (
	"strconv"
	"time"

	"github.com/erauner12/syncengine-go/internal/model"
)

// System property field names carried on every synced item.
const (
	FieldVersion   = "__version"
	FieldUpdatedAt = "__updatedAt"
	FieldDeleted   = "__deleted"
	FieldCreatedAt = "__createdAt"
)

// SystemPropertySet names which system properties a table's DataSource
// tracks. The zero value (nil) holds no properties: Has reports false for
// every key. DefaultSet returns the {version} baseline.
type SystemPropertySet map[string]bool

// DefaultSet returns the default system-property set: {version}.
func DefaultSet() SystemPropertySet {
	return SystemPropertySet{"version": true}
}

// WithDeleted returns a copy of s with "deleted" added.
func (s SystemPropertySet) WithDeleted() SystemPropertySet {
	return s.with("deleted")
}

// WithUpdatedAt returns a copy of s with "updatedAt" added.
func (s SystemPropertySet) WithUpdatedAt() SystemPropertySet {
	return s.with("updatedAt")
}

func (s SystemPropertySet) with(key string) SystemPropertySet {
	out := make(SystemPropertySet, len(s)+1)
	for k := range s {
		out[k] = true
	}
	out[key] = true
	return out
}

func (s SystemPropertySet) Has(key string) bool {
	return s != nil && s[key]
}

// FormatISO renders t as the UTC, locale-free ISO-8601 string the engine
// persists for delta tokens and __updatedAt/__createdAt values.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseISO parses an ISO-8601 timestamp produced by FormatISO, or any
// RFC3339-compatible string a server might send.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// Epoch is the distant-past default used when no delta token exists yet.
func Epoch() time.Time {
	return time.Unix(0, 0).UTC()
}

// Version reads __version from item, defaulting to 0 if absent or
// unparseable.
func Version(item model.Item) int {
	v, ok := item[FieldVersion]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// UpdatedAt reads __updatedAt from item. ok is false if the field is
// missing or unparseable; callers decide how to treat that (see
// synccontext's pull loop: such an item is still merged but does not
// move the delta token).
func UpdatedAt(item model.Item) (t time.Time, ok bool) {
	v, present := item[FieldUpdatedAt]
	if !present {
		return time.Time{}, false
	}
	s, isStr := v.(string)
	if !isStr {
		return time.Time{}, false
	}
	t, err := ParseISO(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Deleted reads __deleted from item, defaulting to false.
func Deleted(item model.Item) bool {
	v, ok := item[FieldDeleted]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// StripExceptVersion removes every system property from item except
// __version. Used by the cancel-keep-item path: the user-supplied
// "corrected" item is stripped of system properties except __version
// before being upserted.
func StripExceptVersion(item model.Item) model.Item {
	out := item.Clone()
	delete(out, FieldUpdatedAt)
	delete(out, FieldDeleted)
	delete(out, FieldCreatedAt)
	return out
}
