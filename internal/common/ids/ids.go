// Package ids generates the opaque identifiers used throughout the domain model.
package ids

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a new id of the form "<prefix>_<12-hex>".
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + raw[:12]
}

// UTCNow returns the current time truncated to millisecond resolution, in UTC.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Prefixes for each id-bearing entity in the domain model.
const (
	PrefixSession = "sess"
	PrefixTurn    = "turn"
	PrefixNode    = "node"
	PrefixEdge    = "edge"
	PrefixGap     = "gap"
	PrefixJob     = "job"
)
