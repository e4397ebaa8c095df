package currency

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// Watcher reloads a definitions file when it changes on disk
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(context.Context, Definitions) error
	logger   *observability.Logger
	delay    time.Duration
}

// NewWatcher watches path and calls onChange with every successful reload.
// The parent directory is watched so that editors replacing the file are seen.
func NewWatcher(path string, onChange func(context.Context, Definitions) error, logger *observability.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onChange: onChange,
		logger:   logger.WithField("component", "currency_watcher"),
		delay:    250 * time.Millisecond,
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// Coalesces the burst of events a single save produces.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(w.delay)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("currency watcher error")
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	defs, err := LoadDefinitionsFile(w.path)
	if err != nil {
		w.logger.WithError(err).Error("failed to reload currency definitions")
		return
	}
	if err := w.onChange(ctx, defs); err != nil {
		w.logger.WithError(err).Error("failed to apply currency definitions")
		return
	}
	w.logger.Infof("reloaded %d currency definitions from %s", len(defs), w.path)
}
