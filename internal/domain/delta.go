package domain

// DeltaKind describes what a Delta carries.
type DeltaKind int

const (
	DeltaNone   DeltaKind = iota // nothing to report
	DeltaSingle                  // one changed row
	DeltaFull                    // every row
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaSingle:
		return "single"
	case DeltaFull:
		return "full"
	default:
		return "none"
	}
}

// Delta is the ephemeral result of a change detection pass.
type Delta struct {
	Kind DeltaKind
	// Record is set for DeltaSingle.
	Record Record
	// Snapshot is set for DeltaFull.
	Snapshot Snapshot
}

// Empty reports whether the delta carries nothing to broadcast.
func (d Delta) Empty() bool {
	return d.Kind == DeltaNone
}
