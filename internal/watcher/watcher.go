// Package watcher uploads documents dropped into watched folders. It watches
// directories with fsnotify, waits for writes to settle and submits each new
// file version to the upload orchestrator.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/config"
	"github.com/Lumosity23/studyRAG-sub001/internal/fileid"
	"github.com/Lumosity23/studyRAG-sub001/internal/upload"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ErrNotStarted is returned by operations that need a running watcher.
var ErrNotStarted = errors.New("watcher not started")

// Uploader submits files. It is implemented by upload.Orchestrator.
type Uploader interface {
	Submit(ctx context.Context, files []upload.File) (*upload.Batch, error)
}

// Watcher watches directories and uploads settled files.
type Watcher struct {
	uploader   Uploader
	roots      []string
	extensions []string
	recursive  bool
	debounce   time.Duration
	maxSize    int64
	logger     *zap.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	pending   map[string]*time.Timer
	rootPaths map[string][]string // root -> directories added for it
	submitted map[string]string   // path key -> fingerprint of the last uploaded version
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithExtensions restricts uploads to the given extensions. Empty means all files.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = append([]string(nil), exts...) }
}

// WithRecursive controls whether subdirectories are watched.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets how long a file must stay unchanged before upload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxFileSize sets the size above which files are not read.
func WithMaxFileSize(n int64) Option {
	return func(w *Watcher) { w.maxSize = n }
}

// New creates a watcher over roots that submits files to uploader.
func New(roots []string, uploader Uploader, opts ...Option) *Watcher {
	w := &Watcher{
		uploader:   uploader,
		extensions: append([]string(nil), config.DefaultExtensions...),
		recursive:  true,
		debounce:   defaultDebounce,
		maxSize:    config.DefaultMaxFileSize,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		rootPaths:  make(map[string][]string),
		submitted:  make(map[string]string),
	}
	for _, root := range roots {
		w.roots = append(w.roots, fileid.Key(root))
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Missing roots are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("watching folders",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	w.wg.Add(1)
	go w.run(w.ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := fileid.Key(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// A file that comes back is uploaded again.
		w.mu.Lock()
		if t, ok := w.pending[path]; ok {
			t.Stop()
			delete(w.pending, path)
		}
		delete(w.submitted, path)
		w.mu.Unlock()
	}
}

// handleNewDirectory watches a directory created or moved under a root and
// uploads the files it already holds. The new watches are recorded against
// the owning root so RemoveDirectory drops them too.
func (w *Watcher) handleNewDirectory(dir string) {
	var dirs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	w.mu.Lock()
	if w.fsw == nil || !w.recursive {
		w.mu.Unlock()
		return
	}
	for _, path := range dirs {
		root := w.ownerLocked(path)
		if root == "" {
			continue
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("watch directory", zap.String("path", path), zap.Error(err))
			continue
		}
		if !slices.Contains(w.rootPaths[root], path) {
			w.rootPaths[root] = append(w.rootPaths[root], path)
		}
	}
	w.mu.Unlock()
	w.submit(w.collect(dir))
}

// ownerLocked returns the innermost root containing path, or "".
func (w *Watcher) ownerLocked(path string) string {
	owner := ""
	for _, root := range w.roots {
		if (root == path || inDir(root, path)) && len(root) > len(owner) {
			owner = root
		}
	}
	return owner
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	recursive := w.recursive
	w.mu.Unlock()
	for _, root := range roots {
		if root == path {
			return true
		}
		if recursive && inDir(root, path) {
			return true
		}
		if !recursive && filepath.Dir(path) == root {
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

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule uploads path once it has not changed for the debounce period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.submit([]string{path})
	})
}

// submit uploads the paths whose content changed since their last upload,
// in one batch. Versions rejected by validation are remembered too so an
// invalid file is not offered again until it changes.
func (w *Watcher) submit(paths []string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil || len(paths) == 0 {
		return
	}

	var (
		files  []upload.File
		keys   []string
		prints []string
	)
	for _, path := range paths {
		f, err := upload.LoadFile(path, w.maxSize)
		if err != nil {
			w.logger.Debug("skip file", zap.String("path", path), zap.Error(err))
			continue
		}
		fp := fileid.Fingerprint(f.Data, f.Size)
		w.mu.Lock()
		seen := w.submitted[path] == fp
		w.mu.Unlock()
		if seen {
			w.logger.Debug("file unchanged since upload", zap.String("path", path))
			continue
		}
		files = append(files, f)
		keys = append(keys, path)
		prints = append(prints, fp)
	}
	if len(files) == 0 {
		return
	}

	w.logger.Info("uploading watched files", zap.Int("files", len(files)))
	batch, err := w.uploader.Submit(ctx, files)
	if err != nil {
		// Left unrecorded so the next change or sync retries them.
		w.logger.Warn("upload watched files", zap.Int("files", len(files)), zap.Error(err))
		return
	}
	w.mu.Lock()
	for i, key := range keys {
		w.submitted[key] = prints[i]
	}
	w.mu.Unlock()
	for _, ve := range batch.Rejected() {
		w.logger.Info("watched file rejected", zap.String("file", ve.Filename), zap.String("reason", ve.Reason))
	}
}

// collect lists the matching files under root.
func (w *Watcher) collect(root string) []string {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	recursive := w.recursive
	w.mu.Unlock()
	var paths []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, exts) {
			paths = append(paths, fileid.Key(path))
		}
		return nil
	})
	return paths
}

// AddDirectory adds a root while running and optionally uploads the files it holds.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs := fileid.Key(root)
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return ErrNotStarted
	}
	for _, r := range w.roots {
		if r == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()
	w.logger.Info("watch folder added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		w.submit(w.collect(abs))
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// RemoveDirectory stops watching root. Documents already uploaded stay on the server.
func (w *Watcher) RemoveDirectory(root string) error {
	abs := fileid.Key(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return ErrNotStarted
	}
	idx := -1
	for i, r := range w.roots {
		if r == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range w.rootPaths[abs] {
		_ = w.fsw.Remove(p)
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	for path, t := range w.pending {
		if inDir(abs, path) {
			t.Stop()
			delete(w.pending, path)
		}
	}
	w.logger.Info("watch folder removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles uploads, in one batch, the matching files already present
// in every root. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	var paths []string
	for _, root := range w.Directories() {
		paths = append(paths, w.collect(root)...)
	}
	w.logger.Debug("syncing existing files", zap.Int("files", len(paths)))
	w.submit(paths)
}

// Stop stops watching, cancels in-flight uploads and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.cancel()
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	w.wg.Wait()
	_ = fsw.Close()
}
