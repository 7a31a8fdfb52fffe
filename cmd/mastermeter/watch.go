package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justyntemme/mastermeter/pkg/audio"
	"github.com/justyntemme/mastermeter/pkg/compliance"
	"github.com/justyntemme/mastermeter/pkg/logging"
)

// settle is how long a file must stay quiet before it is re-read.
const settle = 500 * time.Millisecond

func runWatch(ctx context.Context, args []string, s streams) error {
	o := newOptions("watch", s.err)
	presets := o.fs.String("preset", "", "comma-separated preset names (default: all)")
	presetFile := o.fs.String("presets", "", "extra presets file (.toml, .yaml, .yml)")
	if err := o.parse(args); err != nil {
		return err
	}
	e, err := o.setup()
	if err != nil {
		return err
	}
	reg, err := registry(*presetFile)
	if err != nil {
		return err
	}
	rep := compliance.NewReporter(e.eng, reg)
	names := splitNames(*presets)

	check := func(ref audio.Ref) {
		start, dur, err := o.window(e, ref)
		if err == nil {
			var r compliance.Report
			if r, err = rep.CheckAll(ctx, ref, start, dur, names...); err == nil {
				err = o.emit(s.out, r)
			}
		}
		if err != nil {
			e.log.WithField("ref", ref.String()).Error("check failed: %v", err)
		}
	}
	for _, ref := range e.src.Refs() {
		check(ref)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch directories so files replaced by rename are still seen.
	watched := make(map[string]string)
	for _, p := range e.src.Paths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = p
		dir := filepath.Dir(abs)
		if err := watcher.Add(dir); err != nil {
			return err
		}
		e.log.WithField("dir", dir).Debug("watching")
	}
	e.log.Info("watching %d files, interrupt to stop", len(watched))

	pending := make(map[string]bool)
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			path, tracked := watched[abs]
			if !tracked || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			pending[path] = true
			timer.Reset(settle)

		case <-timer.C:
			for path := range pending {
				refs, err := e.src.Reload(path)
				if err != nil {
					e.log.WithField("path", path).Warn("reload failed: %v", err)
					continue
				}
				e.log.WithFields(logging.Fields{"path": path, "programs": len(refs)}).Info("reloaded")
				for _, ref := range refs {
					check(ref)
				}
			}
			pending = make(map[string]bool)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Warn("watcher: %v", err)
		}
	}
}
