package config

import (
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the config file whenever it changes on disk and hands the
// re-resolved configuration to onChange. Editors replace rather than rewrite
// the file, so the parent directory is watched and events are filtered by
// name. The returned stop function tears the watcher down.
func Watch(v *viper.Viper, onChange func(Config)) (stop func(), err error) {
	path := v.ConfigFileUsed()
	if path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := v.ReadInConfig(); err != nil {
					log.Warn("config reload failed", "error", err)
					continue
				}
				cfg, err := Load(v)
				if err != nil {
					log.Warn("config reload failed", "error", err)
					continue
				}
				log.Debug("config reloaded", "path", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug("config watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
