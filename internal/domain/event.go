package domain

// Event types emitted on the stream.
const (
	EventStatusFull   = "status_csv"
	EventStatusDelta  = "status_csv_add"
	EventHistory      = "history"
	EventHistoryDelta = "history_add"
)

// Event is the unit of broadcast: a type tag and an opaque text payload.
// A payload may span several lines; framers keep them in order.
type Event struct {
	Type    string
	Payload string
}
