// Package watcher uploads policy files dropped into inbox directories.
//
// Directories are watched with fsnotify. Bursts of writes to one file are
// debounced, and uploads are throttled so a bulk copy does not flood the
// backend. A file is uploaded again only after its size or modification time
// changes. Removing a file has no effect: ingested chunks stay in the backend.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/underwriter/internal/document"
	"github.com/hyperjump/underwriter/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 256
)

// Uploader receives files to ingest.
type Uploader interface {
	UploadFile(ctx context.Context, path string) error
}

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime time.Time
}

// Inbox watches directories and uploads matching files.
type Inbox struct {
	roots      []string
	extensions []string
	recursive  bool
	uploader   Uploader
	debounce   time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	pending   map[string]*time.Timer
	rootPaths map[string][]string // root -> watched directories under it
	uploaded  map[string]stamp
	queue     chan string
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for watch events and upload outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is uploaded.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) { in.debounce = d }
}

// WithRate limits uploads to perSecond, with bursts of one. Zero or less
// disables the limit.
func WithRate(perSecond float64) Option {
	return func(in *Inbox) {
		if perSecond <= 0 {
			in.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		in.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New creates an inbox over roots. extensions filter which files are uploaded
// (empty = all).
func New(roots []string, extensions []string, recursive bool, uploader Uploader, opts ...Option) *Inbox {
	in := &Inbox{
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		uploader:   uploader,
		debounce:   defaultDebounce,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		rootPaths:  make(map[string][]string),
		uploaded:   make(map[string]stamp),
		queue:      make(chan string, queueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching. Missing roots are created. It runs until ctx is
// cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.fsw = fsw
	in.started = true
	in.logger.Debug("inbox starting", zap.Strings("roots", in.roots), zap.Strings("extensions", in.extensions), zap.Bool("recursive", in.recursive))
	for _, root := range in.roots {
		if err := in.addRootLocked(root); err != nil {
			_ = in.fsw.Close()
			in.fsw = nil
			in.started = false
			in.mu.Unlock()
			return err
		}
	}
	events, errs := fsw.Events, fsw.Errors
	in.mu.Unlock()
	go in.run(ctx, events, errs)
	go in.drain(ctx)
	return nil
}

func (in *Inbox) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			in.logger.Debug("inbox watch error", zap.Error(err))
		}
	}
}

// drain uploads queued files one at a time at the configured rate.
func (in *Inbox) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-in.done:
			return
		case path := <-in.queue:
			if err := in.limiter.Wait(ctx); err != nil {
				return
			}
			in.upload(ctx, path)
		}
	}
}

func (in *Inbox) upload(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		in.logger.Debug("inbox file gone before upload", zap.String("path", path))
		return
	}
	st := stamp{size: info.Size(), modTime: info.ModTime()}
	in.mu.Lock()
	prev, seen := in.uploaded[path]
	in.mu.Unlock()
	if seen && prev == st {
		in.logger.Debug("inbox file unchanged, skipping", zap.String("path", path))
		return
	}
	in.logger.Info("uploading inbox file", zap.String("path", path))
	if err := in.uploader.UploadFile(ctx, path); err != nil {
		if !errors.Is(err, session.ErrSuperseded) {
			in.logger.Warn("inbox upload failed", zap.String("path", path), zap.Error(err))
			return
		}
		in.logger.Debug("inbox upload ingested but superseded", zap.String("path", path))
	}
	in.mu.Lock()
	in.uploaded[path] = st
	in.mu.Unlock()
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !in.underRoot(path) {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			in.handleNewDirectory(path)
			return
		}
		if document.MatchExtension(path, in.extensions) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		in.cancel(path)
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and
// uploads the files already inside it. Without recursion only the roots
// themselves are watched, so new subdirectories are ignored.
func (in *Inbox) handleNewDirectory(dir string) {
	if !in.recursive {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw == nil {
		return
	}
	root, ok := in.rootOfLocked(dir)
	if !ok {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := in.fsw.Add(path); err != nil {
			in.logger.Debug("inbox failed to watch directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		in.rootPaths[root] = append(in.rootPaths[root], path)
		return nil
	})
	go in.scan(dir)
}

// rootOfLocked returns the watched root that contains path.
func (in *Inbox) rootOfLocked(path string) (string, bool) {
	clean := filepath.Clean(path)
	for _, r := range in.roots {
		root := filepath.Clean(r)
		if root == clean || inDir(root, clean) {
			return root, true
		}
	}
	return "", false
}

func (in *Inbox) underRoot(path string) bool {
	in.mu.Lock()
	roots := append([]string(nil), in.roots...)
	in.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule queues path once it has been quiet for the debounce interval.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.enqueue(path)
	})
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) enqueue(path string) {
	select {
	case in.queue <- path:
	case <-in.done:
	}
}

// AddDirectory starts watching root. With syncExisting, files already in it
// are uploaded.
func (in *Inbox) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw == nil {
		return nil
	}
	for _, r := range in.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := in.addRootLocked(abs); err != nil {
		return err
	}
	in.roots = append(in.roots, abs)
	in.logger.Debug("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go in.scan(abs)
	}
	return nil
}

func (in *Inbox) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	var paths []string
	if in.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := in.fsw.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := in.fsw.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	in.rootPaths[root] = paths
	return nil
}

// scan queues every matching file under root.
func (in *Inbox) scan(root string) {
	in.logger.Debug("inbox scanning directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !in.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if document.MatchExtension(path, in.extensions) {
			in.enqueue(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Already uploaded policies are kept.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw == nil {
		return nil
	}
	idx := -1
	for i, r := range in.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range in.rootPaths[abs] {
		_ = in.fsw.Remove(p)
	}
	delete(in.rootPaths, abs)
	in.roots = append(in.roots[:idx], in.roots[idx+1:]...)
	in.logger.Debug("inbox directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// SyncExistingFiles uploads the matching files already present in every root.
// Call it after Start.
func (in *Inbox) SyncExistingFiles() {
	for _, root := range in.Directories() {
		in.scan(root)
	}
}

// Stop stops watching and drops queued files.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.fsw == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.fsw.Close()
	in.fsw = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}
