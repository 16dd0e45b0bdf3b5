package gguf

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch observes dir for .gguf files appearing, changing, or disappearing and
// invokes onChange with a fresh scan after each burst of events. It blocks
// until ctx is cancelled. Events are debounced because model downloads produce
// long write streams.
func Watch(ctx context.Context, dir string, onChange func([]ModelFile)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	const debounce = 2 * time.Second
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".gguf") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("model_watch_error")
		case <-fire:
			models, err := ScanDir(dir)
			if err != nil {
				log.Warn().Str("dir", dir).Err(err).Msg("model_rescan_failed")
				continue
			}
			onChange(models)
		}
	}
}
