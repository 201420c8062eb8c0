package textproc

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the rules whenever one of the rule files changes on
// disk. Editors fire bursts of events, so reloads are debounced.
func (p *Processor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, path := range []string{p.filterPath, p.filterPathEL, p.replPath} {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			p.logger.Warnf("watch %s: %v", path, err)
		}
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warnf("rule watcher: %v", err)
			case <-reload:
				if err := p.Reload(); err != nil {
					p.logger.Errorf("reload text rules: %v", err)
				}
			}
		}
	}()
	return nil
}
