package domain

// HistoryEntry is one immutable line of the talk history log.
type HistoryEntry struct {
	Start    int64 // unix seconds
	Node     string
	Group    int64
	Duration int64
	// Raw is the line as recorded, re-emitted verbatim in line-oriented payloads.
	Raw string
}
