package control

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	StatusPath  string
	HistoryPath string
	// FullResend issues status_full instead of status when the record file changes.
	FullResend   bool
	PollInterval time.Duration
	Debounce     time.Duration
}

type fileSig struct {
	modTime int64
	size    int64
	exists  bool
}

func statSig(path string) fileSig {
	st, err := os.Stat(path)
	if err != nil {
		return fileSig{}
	}
	return fileSig{modTime: st.ModTime().UnixNano(), size: st.Size(), exists: true}
}

// Watcher issues commands when the record or history file changes. It combines fsnotify
// events on the parent directories with an mtime/size poll, so rewrites are noticed even on
// filesystems without inotify support.
type Watcher struct {
	opts    WatcherOptions
	handler *Handler
	clock   clockwork.Clock

	status  string
	history string
	sigs    map[string]fileSig
}

// NewWatcher resolves the watched paths.
func NewWatcher(opts WatcherOptions, h *Handler, clock clockwork.Clock) (*Watcher, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}

	w := &Watcher{opts: opts, handler: h, clock: clock, sigs: make(map[string]fileSig)}

	var err error
	if opts.StatusPath != "" {
		if w.status, err = filepath.Abs(opts.StatusPath); err != nil {
			return nil, fmt.Errorf("resolve status path: %w", err)
		}
	}
	if opts.HistoryPath != "" {
		if w.history, err = filepath.Abs(opts.HistoryPath); err != nil {
			return nil, fmt.Errorf("resolve history path: %w", err)
		}
	}
	return w, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, p := range w.paths() {
		w.sigs[p] = statSig(p)
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fw := w.startNotify(); fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	ticker := w.clock.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var debounce clockwork.Timer
	var debounceC <-chan time.Time
	pending := make(map[string]bool)

	mark := func(path string) {
		pending[path] = true
		if debounce == nil {
			debounce = w.clock.NewTimer(w.opts.Debounce)
		} else {
			debounce.Reset(w.opts.Debounce)
		}
		debounceC = debounce.Chan()
	}
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	slog.Info("File watcher started", "status", w.status, "history", w.history, "poll_interval", w.opts.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if p := filepath.Clean(ev.Name); p == w.status || p == w.history {
				mark(p)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("File watcher error", "error", err)

		case <-ticker.Chan():
			for _, p := range w.paths() {
				if statSig(p) != w.sigs[p] {
					mark(p)
				}
			}

		case <-debounceC:
			debounceC = nil
			w.flush(ctx, pending)
			pending = make(map[string]bool)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]bool) {
	for p := range pending {
		w.sigs[p] = statSig(p)
	}

	if w.status != "" && pending[w.status] {
		kind := domain.CommandStatus
		if w.opts.FullResend {
			kind = domain.CommandStatusFull
		}
		w.handler.Handle(ctx, SourceWatch, domain.Command{Kind: kind})
	}
	if w.history != "" && pending[w.history] {
		w.handler.Handle(ctx, SourceWatch, domain.Command{Kind: domain.CommandHistory})
	}
}

func (w *Watcher) startNotify() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, polling only", "error", err)
		return nil
	}

	dirs := make(map[string]bool)
	for _, p := range w.paths() {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fw.Add(dir); err != nil {
			slog.Warn("Cannot watch directory, polling only", "dir", dir, "error", err)
		}
	}
	return fw
}

func (w *Watcher) paths() []string {
	var out []string
	if w.status != "" {
		out = append(out, w.status)
	}
	if w.history != "" {
		out = append(out, w.history)
	}
	return out
}
