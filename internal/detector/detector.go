// Package detector turns successive record snapshots into minimal deltas.
package detector

import (
	"sync"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Detector remembers the last signature per record key.
// Each call is one critical section, so concurrent callers never interleave a read and an
// update of the same key's signature.
type Detector struct {
	mu   sync.Mutex
	last map[string]domain.Signature
}

// New creates a detector with empty memory. The first Delta therefore reports a change.
func New() *Detector {
	return &Detector{last: make(map[string]domain.Signature)}
}

// Delta computes what changed between the remembered signatures and snap.
//
// A non-empty requestedKey present in snap is reported unconditionally and only that key's
// memory is refreshed. Otherwise the most recent changed row is reported; when nothing changed
// the most recent row of the whole snapshot is reported instead, so slow pollers always get
// something current. Memory is replaced by snap before returning.
func (d *Detector) Delta(snap domain.Snapshot, requestedKey string) domain.Delta {
	d.mu.Lock()
	defer d.mu.Unlock()

	if requestedKey != "" {
		if r, ok := snap.Get(requestedKey); ok {
			d.last[requestedKey] = r.Signature()
			return domain.Delta{Kind: domain.DeltaSingle, Record: r}
		}
	}

	current := make(map[string]domain.Signature, snap.Len())
	var (
		best    domain.Record
		found   bool
		newest  domain.Record
		hasRows bool
	)
	for _, r := range snap.Records() {
		sig := r.Signature()
		current[r.Link] = sig

		if !hasRows || newer(r, newest) {
			newest = r
			hasRows = true
		}

		if prev, ok := d.last[r.Link]; ok && prev == sig {
			continue
		}
		if !found || newer(r, best) {
			best = r
			found = true
		}
	}
	// Keys that vanished from snap changed too, but have no row to report.
	d.last = current

	switch {
	case found:
		return domain.Delta{Kind: domain.DeltaSingle, Record: best}
	case hasRows:
		return domain.Delta{Kind: domain.DeltaSingle, Record: newest}
	default:
		return domain.Delta{Kind: domain.DeltaNone}
	}
}

// Full returns the whole snapshot and refreshes every remembered signature.
func (d *Detector) Full(snap domain.Snapshot) domain.Delta {
	d.Prime(snap)
	if snap.Len() == 0 {
		return domain.Delta{Kind: domain.DeltaNone}
	}
	return domain.Delta{Kind: domain.DeltaFull, Snapshot: snap}
}

// Prime replaces the remembered signatures with those of snap.
func (d *Detector) Prime(snap domain.Snapshot) {
	current := make(map[string]domain.Signature, snap.Len())
	for _, r := range snap.Records() {
		current[r.Link] = r.Signature()
	}

	d.mu.Lock()
	d.last = current
	d.mu.Unlock()
}

// known returns how many keys are remembered.
func (d *Detector) known() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// newer reports whether a ranks above b: newest activity first, then the smaller key.
func newer(a, b domain.Record) bool {
	if c := a.Recency().Compare(b.Recency()); c != 0 {
		return c > 0
	}
	return a.Link < b.Link
}
