package detector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchModels watches the models directory and calls onChange when files
// inside it are written or replaced. Bursts of events from a model update
// collapse into a single callback. Blocks until the context is canceled.
func WatchModels(ctx context.Context, dir string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	const settle = 2 * time.Second
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopping watcher for %s, %v", dir, ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Printf("[DEBUG] model dir change: %s", event)
			if timer == nil {
				timer = time.NewTimer(settle)
				timerC = timer.C
				continue
			}
			timer.Reset(settle)
		case <-timerC:
			timer, timerC = nil, nil
			log.Printf("[INFO] model files in %s updated", dir)
			onChange()
		case e, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] watcher error: %v", e)
		}
	}
}
