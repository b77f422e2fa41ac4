package recordstore

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Recorder lines of the form "02.01.2006 15:04:05;NODE;TG;DURATION".
var datedEntry = regexp.MustCompile(`([0-9]{2}\.[0-9]{2}\.[0-9]{4}) +([0-9]{2}:[0-9]{2}:[0-9]{2});([^;\n]+);([0-9]+);([0-9]+)`)

const datedLayout = "02.01.2006 15:04:05"

// HistoryFormat selects how history events are encoded.
type HistoryFormat string

const (
	HistoryLines HistoryFormat = "lines"
	HistoryJSON  HistoryFormat = "json"
)

// ParseHistoryTail scans the log and keeps only the newest tail entries, oldest first.
func ParseHistoryTail(r io.Reader, tail int) ([]domain.HistoryEntry, error) {
	if tail <= 0 {
		return nil, nil
	}
	ring := make([]domain.HistoryEntry, tail)
	n := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		entry, ok := ParseHistoryLine(scanner.Text())
		if !ok {
			continue
		}
		ring[n%tail] = entry
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if n <= tail {
		return ring[:n], nil
	}
	out := make([]domain.HistoryEntry, 0, tail)
	start := n % tail
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out, nil
}

// ParseHistoryLine parses one log line in either the dated or the unix-seconds format.
func ParseHistoryLine(line string) (domain.HistoryEntry, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(strings.ToLower(s), "ts;") {
		return domain.HistoryEntry{}, false
	}

	if m := datedEntry.FindStringSubmatch(s); m != nil {
		ts, err := time.ParseInLocation(datedLayout, m[1]+" "+m[2], time.Local)
		if err != nil {
			return domain.HistoryEntry{}, false
		}
		return domain.HistoryEntry{
			Start:    ts.Unix(),
			Node:     m[3],
			Group:    domain.Coerce(m[4]),
			Duration: domain.Coerce(m[5]),
			Raw:      m[0],
		}, true
	}

	parts := strings.Split(s, ";")
	if len(parts) < 4 {
		return domain.HistoryEntry{}, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return domain.HistoryEntry{}, false
	}
	node := strings.TrimSpace(parts[1])
	if node == "" {
		return domain.HistoryEntry{}, false
	}
	return domain.HistoryEntry{
		Start:    start,
		Node:     node,
		Group:    domain.Coerce(parts[2]),
		Duration: domain.Coerce(parts[3]),
		Raw:      s,
	}, true
}

type historyJSON struct {
	StartTS  int64  `json:"start_ts"`
	Node     string `json:"node"`
	Group    int64  `json:"tg"`
	Duration int64  `json:"dur"`
}

// FormatHistory renders entries as a payload: raw lines joined by newlines, or a JSON array.
func FormatHistory(entries []domain.HistoryEntry, format HistoryFormat) string {
	if format == HistoryJSON {
		out := make([]historyJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, historyJSON{StartTS: e.Start, Node: e.Node, Group: e.Group, Duration: e.Duration})
		}
		data, err := json.Marshal(out)
		if err != nil {
			return "[]"
		}
		return string(data)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Raw)
	}
	return strings.Join(lines, "\n")
}

// FormatHistoryEntry renders a single entry in the given format. JSON entries are objects.
func FormatHistoryEntry(e domain.HistoryEntry, format HistoryFormat) string {
	if format == HistoryJSON {
		data, err := json.Marshal(historyJSON{StartTS: e.Start, Node: e.Node, Group: e.Group, Duration: e.Duration})
		if err != nil {
			return "{}"
		}
		return string(data)
	}
	return e.Raw
}
