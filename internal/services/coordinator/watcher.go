package coordinator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Notifier delivers paths of plan files that appeared or changed. The
// coordinator only needs paths; dedup happens downstream at enqueue.
type Notifier interface {
	Start(ctx context.Context) error
	Events() <-chan string
	Close() error
}

// PlanWatcher is an fsnotify-backed Notifier for a single plan directory.
// Producers write plans via temp file + rename, so a rename/create event
// means the file is complete.
type PlanWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	events  chan string
}

func NewPlanWatcher(dir string) (*PlanWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating plan watcher: %w", err)
	}
	return &PlanWatcher{
		dir:     dir,
		watcher: w,
		events:  make(chan string, 64),
	}, nil
}

func (w *PlanWatcher) Events() <-chan string {
	return w.events
}

// Start begins watching the plan directory and forwards .json create,
// write, and rename-in events until the context ends.
func (w *PlanWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching plan directory %s: %w", w.dir, err)
	}

	go func() {
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
					continue
				}
				select {
				case w.events <- event.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("plan watcher error: %v", err)
			}
		}
	}()

	return nil
}

func (w *PlanWatcher) Close() error {
	return w.watcher.Close()
}
