// Package policy decides whether a cached record is stale enough to query
// the registry again.
package policy

import (
	"time"

	"github.com/git-pkgs/updatecheck/internal/core"
)

// DefaultInterval is the minimum time between registry queries.
const DefaultInterval = time.Hour

// ShouldCheck reports whether a network query is warranted: when forced,
// when the record was never checked, or when now is strictly past
// lastCheck + interval. Times compare at millisecond precision.
func ShouldCheck(rec core.Record, force bool, interval time.Duration, now time.Time) bool {
	if force || rec.LastCheck == nil {
		return true
	}
	return now.UnixMilli() > *rec.LastCheck+interval.Milliseconds()
}
