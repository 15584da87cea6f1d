package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Prefix is the ref namespace for recovery points
const Prefix = "snapshot/"

// timeLayout is the minute-granularity timestamp embedded in snapshot names
const timeLayout = "2006-01-02-1504"

// Snapshot is a named, immutable recovery point in a repository.
// Identity is the name; the embedded timestamp has minute granularity.
type Snapshot struct {
	Name      string
	Kind      string
	CreatedAt time.Time
	// Parseable is false when the name does not follow the naming
	// convention. Such entries are still listed so pruning never deletes
	// something it could not understand.
	Parseable bool
}

// BuildName builds a snapshot name for an operation kind at the given time
func BuildName(kind string, at time.Time) string {
	return fmt.Sprintf("%s%s-%s", Prefix, kind, at.UTC().Format(timeLayout))
}

// WithSuffix appends a collision suffix derived from a tracking ID
func WithSuffix(name, trackingID string) string {
	suffix := trackingID
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return name + "-" + strings.ToLower(suffix)
}

// ParseName parses a snapshot ref name into a Snapshot.
// Names that match the convention yield Parseable=true; anything else is
// returned with Parseable=false and a zero timestamp.
func ParseName(name string) Snapshot {
	s := Snapshot{Name: name}
	rest, ok := strings.CutPrefix(name, Prefix)
	if !ok {
		return s
	}

	// kind-YYYY-MM-DD-HHMM with an optional 4-char collision suffix
	parts := strings.Split(rest, "-")
	if len(parts) < 5 {
		return s
	}

	// Timestamp is the last 4 dash-separated fields, or the 4 before a
	// trailing collision suffix.
	for _, tail := range []int{len(parts), len(parts) - 1} {
		if tail < 5 {
			continue
		}
		stamp := strings.Join(parts[tail-4:tail], "-")
		at, err := time.ParseInLocation(timeLayout, stamp, time.UTC)
		if err != nil {
			continue
		}
		s.Kind = strings.Join(parts[:tail-4], "-")
		if s.Kind == "" {
			return Snapshot{Name: name}
		}
		s.CreatedAt = at
		s.Parseable = true
		return s
	}
	return s
}

// OlderThan reports whether a parseable snapshot predates the cutoff.
// Unparseable snapshots are never considered old.
func (s Snapshot) OlderThan(cutoff time.Time) bool {
	return s.Parseable && s.CreatedAt.Before(cutoff)
}
