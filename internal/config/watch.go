package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file on write and hands the parsed result to
// a reload callback (typically ptypool.Pool.Reconfigure), giving
// reconfigure a concrete trigger beyond a caller deciding to change
// settings by hand.
type Watcher struct {
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// WatchForChanges starts watching the config file's directory and invokes
// onReload with the freshly loaded Config whenever the file is written.
// Cancel ctx to stop the watcher; callers should wait on Close().
func WatchForChanges(ctx context.Context, log zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, log: log.With().Str("component", "config_watcher").Logger()}

	w.wg.Add(1)
	go w.watchLoop(ctx, configPath, onReload)

	return w, nil
}

func (w *Watcher) watchLoop(ctx context.Context, configPath string, onReload func(*Config)) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				w.log.Warn().Err(err).Msg("reload failed, keeping previous config")
				continue
			}
			w.log.Info().Msg("config file changed, reloading")
			onReload(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug().Err(err).Msg("fsnotify error")
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
