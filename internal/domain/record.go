package domain

import (
	"math"
	"strconv"
	"strings"
)

// RecordFields lists the status.csv columns in file order.
var RecordFields = [...]string{
	"link", "src", "connected", "talk_active", "tg",
	"last_change", "last_talk_start", "last_talk_stop", "talk_last_duration",
}

// RecordFieldCount is the exact number of fields a valid status row carries.
const RecordFieldCount = len(RecordFields)

// Record is one status row keyed by its link (node) name.
// Values are kept as raw text so the row can be re-emitted exactly as recorded.
type Record struct {
	Link             string
	Source           string
	Connected        string
	TalkActive       string
	Group            string
	LastChange       string
	LastTalkStart    string
	LastTalkStop     string
	LastTalkDuration string
}

// Fields returns the row values in file order.
func (r Record) Fields() []string {
	return []string{
		r.Link, r.Source, r.Connected, r.TalkActive, r.Group,
		r.LastChange, r.LastTalkStart, r.LastTalkStop, r.LastTalkDuration,
	}
}

// Join renders the row with the given delimiter.
func (r Record) Join(delim string) string {
	return strings.Join(r.Fields(), delim)
}

// Signature is the comparable summary of a record's mutable attributes.
// Two records are unchanged iff their signatures are equal.
type Signature struct {
	Connected        int64
	TalkActive       int64
	Group            int64
	LastChange       int64
	LastTalkStart    int64
	LastTalkStop     int64
	LastTalkDuration int64
}

// Signature derives the record's signature, coercing every field to an integer.
func (r Record) Signature() Signature {
	return Signature{
		Connected:        Coerce(r.Connected),
		TalkActive:       Coerce(r.TalkActive),
		Group:            Coerce(r.Group),
		LastChange:       Coerce(r.LastChange),
		LastTalkStart:    Coerce(r.LastTalkStart),
		LastTalkStop:     Coerce(r.LastTalkStop),
		LastTalkDuration: Coerce(r.LastTalkDuration),
	}
}

// Recency holds the timestamps used to rank records.
type Recency struct {
	LastChange    int64
	LastTalkStop  int64
	LastTalkStart int64
}

// Recency returns the record's ranking timestamps.
func (r Record) Recency() Recency {
	return Recency{
		LastChange:    Coerce(r.LastChange),
		LastTalkStop:  Coerce(r.LastTalkStop),
		LastTalkStart: Coerce(r.LastTalkStart),
	}
}

// Latest is the newest activity of any kind.
func (a Recency) Latest() int64 {
	return max(a.LastChange, a.LastTalkStop, a.LastTalkStart)
}

// Compare orders recencies by Latest: -1 if a is older, 0 if equal, +1 if a is newer.
func (a Recency) Compare(b Recency) int {
	return cmpInt(a.Latest(), b.Latest())
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Coerce parses a numeric field, truncating fractions. Anything unparseable is zero.
func Coerce(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

// Snapshot is the parsed content of the record file: rows in file order plus a key index.
type Snapshot struct {
	rows  []Record
	index map[string]int
}

// NewSnapshot builds a snapshot. A repeated key replaces the earlier row in place.
func NewSnapshot(records ...Record) Snapshot {
	s := Snapshot{index: make(map[string]int, len(records))}
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add appends a row, or replaces the row already stored under the same key.
func (s *Snapshot) Add(r Record) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[r.Link]; ok {
		s.rows[i] = r
		return
	}
	s.index[r.Link] = len(s.rows)
	s.rows = append(s.rows, r)
}

// Get returns the row stored under key.
func (s Snapshot) Get(key string) (Record, bool) {
	i, ok := s.index[key]
	if !ok {
		return Record{}, false
	}
	return s.rows[i], true
}

// Records returns the rows in file order. The slice must not be modified.
func (s Snapshot) Records() []Record {
	return s.rows
}

// Len returns the number of rows.
func (s Snapshot) Len() int {
	return len(s.rows)
}
