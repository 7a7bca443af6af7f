package agent

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// defaultDebounce coalesces bursts of filesystem events into one reload.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads frpc when configuration fragments change on disk. It backs
// the "agent watch" subcommand, used when something other than the agent
// itself writes fragments into the config directory.
type Watcher struct {
	// Dir is the config directory to watch.
	Dir string

	// Reloader is invoked after changes settle.
	Reloader Reloader

	// Debounce is the quiet period before a reload. Defaults to 500ms.
	Debounce time.Duration

	// Logger receives watch events.
	Logger zerolog.Logger
}

// Run watches until ctx is cancelled. Only fragment and root config changes
// trigger reloads; temp files from atomic writes are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fs watcher")
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.Dir); err != nil {
		return errors.Wrapf(err, "failed to watch %q", w.Dir)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	w.Logger.Info().Str("dir", w.Dir).Msg("watching for config changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}

			if !isConfigChange(event) {
				continue
			}

			w.Logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("config change")
			timer.Reset(debounce)

		case watchErr, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}

			w.Logger.Error().Err(watchErr).Msg("watch error")

		case <-timer.C:
			w.Logger.Info().Msg("reloading frpc")

			if reloadErr := w.Reloader.Reload(ctx); reloadErr != nil {
				w.Logger.Error().Err(reloadErr).Msg("reload failed")
				timer.Reset(debounce)
			}
		}
	}
}

// isConfigChange reports whether an event concerns a TOML config file.
// In-progress atomic writes land in temp files and only count once renamed.
func isConfigChange(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.Contains(name, ".tmp-") {
		return false
	}

	return strings.HasSuffix(name, ".toml")
}
