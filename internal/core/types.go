// Package core provides the shared types, error taxonomy and version ordering.
package core

import "time"

// DefaultDistTag is the dist-tag checked when the caller does not name one.
const DefaultDistTag = "latest"

// Package identifies the caller's own package.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Record is the persisted last-known result for one (name, dist-tag) pair.
// It doubles as the value returned from a check.
//
// Latest and LastCheck are pointers so that "unknown" and "never checked"
// serialize as JSON null.
type Record struct {
	Current         string  `json:"current"`
	DistTag         string  `json:"distTag"`
	Latest          *string `json:"latest"`
	LastCheck       *int64  `json:"lastCheck"`
	Name            string  `json:"name"`
	UpdateAvailable bool    `json:"updateAvailable"`
}

// LatestVersion returns the latest known version or "" when unknown.
func (r *Record) LatestVersion() string {
	if r.Latest == nil {
		return ""
	}
	return *r.Latest
}

// SetLatest records a query outcome. An empty version means "no known latest".
func (r *Record) SetLatest(version string) {
	if version == "" {
		r.Latest = nil
		return
	}
	r.Latest = &version
}

// MarkChecked stamps the record with the query time in epoch milliseconds.
func (r *Record) MarkChecked(at time.Time) {
	ms := at.UnixMilli()
	r.LastCheck = &ms
}

// LastCheckTime returns the last query time, or the zero time if never checked.
func (r *Record) LastCheckTime() time.Time {
	if r.LastCheck == nil {
		return time.Time{}
	}
	return time.UnixMilli(*r.LastCheck)
}

// Evaluate recomputes UpdateAvailable from Latest and Current. The stored
// value is never trusted.
func (r *Record) Evaluate() bool {
	r.UpdateAvailable = r.Latest != nil && GreaterThan(*r.Latest, r.Current)
	return r.UpdateAvailable
}
