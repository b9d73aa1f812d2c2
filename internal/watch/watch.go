// Package watch submits contracts dropped into a directory for review.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/document"
	"github.com/fyrsmithlabs/contractd/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before it is submitted.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrNotDirectory is returned when the watched path is not a directory.
	ErrNotDirectory = errors.New("watch path is not a directory")
)

// Handler reviews one contract file.
type Handler func(ctx context.Context, path string)

// Options configures a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// ScanExisting submits contracts already in the directory on Start.
	ScanExisting bool
	Logger       *logging.Logger
}

// Watcher watches a drop folder for new .pdf and .docx files.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	scan     bool
	logger   *logging.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	pending   map[string]*time.Timer
	submitted map[string]bool
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch handler is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		dir:       dir,
		handler:   handler,
		debounce:  opts.Debounce,
		scan:      opts.ScanExisting,
		logger:    opts.Logger.Named("watch"),
		watcher:   fw,
		stop:      make(chan struct{}),
		pending:   make(map[string]*time.Timer),
		submitted: make(map[string]bool),
	}, nil
}

// Start begins watching. Handlers run with a context that is cancelled by
// Stop or when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)

	if w.scan {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return fmt.Errorf("reading %s: %w", w.dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				w.schedule(ctx, filepath.Join(w.dir, e.Name()))
			}
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processEvents(ctx)
	}()

	w.logger.Info(ctx, "watching for contracts",
		zap.String("dir", w.dir),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop stops watching, cancels running handlers and waits for them to
// return. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		if w.cancel != nil {
			w.cancel()
		}
		_ = w.watcher.Close()

		w.mu.Lock()
		for path, t := range w.pending {
			if t.Stop() {
				// the timer never fired, so its goroutine was never counted
				w.wg.Done()
			}
			delete(w.pending, path)
		}
		w.mu.Unlock()
	})
	w.wg.Wait()
}

// Submitted reports whether path has been handed to the handler.
func (w *Watcher) Submitted(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitted[path]
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watch error", zap.Error(err))
		}
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !eligible(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stop:
		return
	default:
	}
	if w.submitted[path] {
		return
	}
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			t.Reset(w.debounce)
			return
		}
		// already firing; a later write after submission is ignored
		return
	}

	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(ctx, path)
	})
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	if w.submitted[path] || ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.submitted[path] = true
	w.mu.Unlock()

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		w.logger.Debug(ctx, "skipping vanished file", zap.String("path", path))
		return
	}

	w.logger.Info(ctx, "submitting contract", zap.String("path", path))
	w.handler(ctx, path)
}

// eligible filters out unsupported extensions, hidden files and the lock
// files office suites leave next to open documents.
func eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return document.Supported(base)
}
