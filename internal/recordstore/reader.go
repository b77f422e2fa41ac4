package recordstore

import (
	"fmt"
	"os"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

const maxLineLength = 1024 * 1024

// Reader loads the current record snapshot and the history tail from disk.
// It is stateless and safe for concurrent use.
type Reader struct {
	statusPath  string
	historyPath string
	delim       string
	tail        int
}

// NewReader creates a reader for the given files. tail is the history window size.
func NewReader(statusPath, historyPath, delim string, tail int) *Reader {
	return &Reader{
		statusPath:  statusPath,
		historyPath: historyPath,
		delim:       delim,
		tail:        tail,
	}
}

// Records reads and parses the status file.
func (r *Reader) Records() (domain.Snapshot, error) {
	f, err := os.Open(r.statusPath)
	if err != nil {
		return domain.NewSnapshot(), fmt.Errorf("open status file: %w", err)
	}
	defer f.Close()

	snap, err := ParseRecords(f, r.delim)
	if err != nil {
		return domain.NewSnapshot(), fmt.Errorf("read status file: %w", err)
	}
	return snap, nil
}

// History returns the newest entries of the history log, oldest first.
func (r *Reader) History() ([]domain.HistoryEntry, error) {
	f, err := os.Open(r.historyPath)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	entries, err := ParseHistoryTail(f, r.tail)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	return entries, nil
}

// Delim returns the record field delimiter.
func (r *Reader) Delim() string {
	return r.delim
}
