package config

import (
	"context"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Swind/go-task-scheduler/core"
)

const (
	defaultDebounce    = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher reloads a config file when it changes on disk and hands every new, valid
// config to apply. Unparseable files and unchanged content are skipped.
type Watcher struct {
	path     string
	log      core.Logger
	apply    func(Config) error
	debounce time.Duration

	mu       sync.Mutex
	lastHash uint64
	timer    *time.Timer
	stopped  bool
	inflight sync.WaitGroup
}

func NewWatcher(path string, log core.Logger, apply func(Config) error) *Watcher {
	if log == nil {
		log = core.NewNoOpLogger()
	}
	return &Watcher{path: path, log: log, apply: apply, debounce: defaultDebounce}
}

// SetDebounce overrides the quiet period between the last file event and the reload.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Prime records the content of the file as already applied, so the first event
// without a content change does not re-apply it.
func (w *Watcher) Prime() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.lastHash = hashBytes(data)
	w.mu.Unlock()
	return nil
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// reload parses the file and applies it when the content changed.
func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("config read failed", core.F("path", w.path), core.F("error", err))
		return
	}

	h := hashBytes(data)
	w.mu.Lock()
	unchanged := h == w.lastHash
	w.mu.Unlock()
	if unchanged {
		w.log.Debug("config unchanged; skipping reload", core.F("path", w.path))
		return
	}

	cfg, err := Parse(data)
	if err != nil {
		w.log.Warn("config parse failed", core.F("path", w.path), core.F("error", err))
		return
	}
	if err := w.apply(cfg); err != nil {
		w.log.Warn("config rejected", core.F("path", w.path), core.F("error", err))
		return
	}

	w.mu.Lock()
	w.lastHash = h
	w.mu.Unlock()
	w.log.Info("config reloaded", core.F("path", w.path), core.F("allocations", cfg.ThreadAllocations()))
}

// debounce to avoid partial writes
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

// fire runs a debounced reload unless the watcher has stopped.
func (w *Watcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.inflight.Add(1)
	w.mu.Unlock()

	defer w.inflight.Done()
	w.reload()
}

// stopTimer cancels a pending reload and waits for one already running, so apply is
// never called after Watch returns.
func (w *Watcher) stopTimer() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.inflight.Wait()
}

// Watch blocks until ctx is done. The containing directory is watched so editors that
// replace the file atomically are still seen; a broken fsnotify watcher is recreated
// with jittered exponential backoff.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = false
	w.mu.Unlock()
	defer w.stopTimer()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}
	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.Warn("config watch init failed", core.F("error", err), core.F("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.log.Warn("config watch add failed", core.F("error", err), core.F("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.log.Debug("config watcher started", core.F("dir", dir), core.F("file", file))

		broken := w.consume(ctx, fw, file)
		_ = fw.Close()
		if !broken {
			return nil
		}

		wait := nextWait()
		w.log.Warn("config watcher stopped; restarting", core.F("dir", dir), core.F("backoff", wait))
		if !sleep(wait) {
			return nil
		}
	}
	return nil
}

// consume drains watcher events until ctx is done (false) or the watcher breaks (true).
func (w *Watcher) consume(ctx context.Context, fw *fsnotify.Watcher, file string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-fw.Events:
			if !ok {
				return true
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return true
			}
			if err == nil {
				continue
			}
			// Overflow means we may have missed events; reload once and keep going.
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				w.log.Warn("config watch overflow; forcing reload", core.F("error", err))
				w.schedule()
				continue
			}
			w.log.Warn("config watch error", core.F("error", err))
		}
	}
}
