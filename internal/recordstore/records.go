package recordstore

import (
	"bufio"
	"io"
	"strings"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// ParseRecords parses delimiter-separated status rows. A leading header naming the fields is
// skipped, as is any row that does not carry exactly domain.RecordFieldCount fields.
func ParseRecords(r io.Reader, delim string) (domain.Snapshot, error) {
	snap := domain.NewSnapshot()
	header := headerLine(delim)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first {
			first = false
			if normalizeHeader(line) == header {
				continue
			}
		}

		parts := strings.Split(line, delim)
		if len(parts) != domain.RecordFieldCount {
			continue
		}
		if parts[0] == "" {
			continue
		}
		snap.Add(domain.Record{
			Link:             parts[0],
			Source:           parts[1],
			Connected:        parts[2],
			TalkActive:       parts[3],
			Group:            parts[4],
			LastChange:       parts[5],
			LastTalkStart:    parts[6],
			LastTalkStop:     parts[7],
			LastTalkDuration: parts[8],
		})
	}
	if err := scanner.Err(); err != nil {
		return domain.NewSnapshot(), err
	}
	return snap, nil
}

// FormatSnapshot renders a snapshot as a header line followed by one row per line.
func FormatSnapshot(snap domain.Snapshot, delim string) string {
	var b strings.Builder
	b.WriteString(strings.Join(domain.RecordFields[:], delim))
	for _, r := range snap.Records() {
		b.WriteByte('\n')
		b.WriteString(r.Join(delim))
	}
	return b.String()
}

func headerLine(delim string) string {
	return normalizeHeader(strings.Join(domain.RecordFields[:], delim))
}

func normalizeHeader(line string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(line), " ", ""))
}
