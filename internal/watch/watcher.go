// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs package checks when declaration files change.
//
// A Watcher monitors a directory tree, maps every changed file to the
// declaration package that owns it, and invokes a callback once the tree has
// been quiet for the debounce period. Events inside the debounce window are
// coalesced so the callback sees each affected package exactly once.
package watch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/dtcheck/dtcheck/internal/pkgdir"
)

const defaultDebounce = 300 * time.Millisecond

// ErrInvalidWatchConfig is the sentinel wrapped by InvalidWatchConfigError.
var ErrInvalidWatchConfig = errors.New("invalid watch config")

// A directory owns the files below it when it holds one of these.
var packageMarkers = []string{"package.json", "tsconfig.json"}

var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the directory to watch: a single package directory or a
		// tree holding many. Empty means the working directory.
		Root string

		// Patterns select the files that trigger a check. Empty matches all
		// non-ignored files.
		Patterns []string

		// Ignore is merged with the built-in ignores.
		Ignore []string

		// Debounce is the quiet period before OnChange fires. Zero or
		// negative values fall back to 300ms.
		Debounce time.Duration

		// OnChange receives the affected packages in path order.
		OnChange func(ctx context.Context, dirs []pkgdir.Dir) error

		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// InvalidWatchConfigError collects every invalid Config field.
	InvalidWatchConfigError struct {
		FieldErrors []error
	}

	// Watcher monitors a tree and fires a debounced callback. Run must be
	// called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		debounce time.Duration
		root     string
		log      *slog.Logger
		started  atomic.Bool
	}
)

func (e *InvalidWatchConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidWatchConfig, strings.Join(msgs, "; "))
}

func (e *InvalidWatchConfigError) Unwrap() error { return ErrInvalidWatchConfig }

// IsValid reports whether every glob in the config compiles.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	errs = append(errs, validatePatterns(c.Patterns, "watch")...)
	errs = append(errs, validatePatterns(c.Ignore, "ignore")...)
	if len(errs) > 0 {
		return false, []error{&InvalidWatchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// New validates cfg and registers every non-ignored directory below Root.
func New(cfg Config) (*Watcher, error) {
	if ok, errs := cfg.IsValid(); !ok {
		return nil, errs[0]
	}

	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		root = wd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	if _, err := pkgdir.Resolve(absRoot); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		debounce: debounce,
		root:     absRoot,
		log:      logger.With("root", absRoot),
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			w.log.Warn("close watcher after init failure", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]pkgdir.Dir)
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run after cancellation since it is scheduled by AfterFunc.
	// A callback still running when the next batch is due defers that batch.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.log.Debug("previous check still running, deferring")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		dirs := slices.SortedFunc(maps.Values(pending), func(a, b pkgdir.Dir) int {
			return cmp.Compare(a.Path, b.Path)
		})
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange == nil {
			return
		}
		if err := w.cfg.OnChange(ctx, dirs); err != nil {
			w.log.Error("check failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.log.Warn("close watcher", "error", closeErr)
		}
	}()

	w.log.Info("watching for changes", "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			rel := w.relative(evt.Name)
			if w.isIgnored(rel) || !w.matchesPatterns(rel) {
				continue
			}
			dir, found := w.owningPackage(evt.Name)
			if !found {
				w.log.Debug("change outside any package", "path", rel)
				continue
			}
			w.log.Debug("change", "path", rel, "op", evt.Op.String(), "package", dir.DisplayName())

			mu.Lock()
			pending[dir.Path] = dir
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if unrecoverable(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

// unrecoverable reports whether err means the watcher lost its kernel
// resources and will not deliver further events.
func unrecoverable(err error) bool {
	return slices.ContainsFunc(unrecoverableErrnos, func(errno syscall.Errno) bool {
		return errors.Is(err, errno)
	})
}

// owningPackage returns the nearest directory at or above the changed path,
// but not above Root, that holds a package marker.
func (w *Watcher) owningPackage(path string) (pkgdir.Dir, bool) {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	for {
		rel, err := filepath.Rel(w.root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return pkgdir.Dir{}, false
		}
		for _, marker := range packageMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return pkgdir.FromPath(dir), true
			}
		}
		if rel == "." {
			return pkgdir.Dir{}, false
		}
		dir = filepath.Dir(dir)
	}
}

func (w *Watcher) addDirectories() error {
	walkErr := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			w.log.Warn("skipping inaccessible path", "path", path, "error", walkDirErr)
			return nil //nolint:nilerr // inaccessible subtrees are not watched
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.relative(path); rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir extends the watch to directories created after startup.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel := w.relative(path)
	if w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn("add new directory", "path", path, "error", err)
	}
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

// matchesPatterns is true for every path when no patterns are configured.
func (w *Watcher) matchesPatterns(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) []error {
	var errs []error
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("invalid %s pattern %q: %w", label, pat, doublestar.ErrBadPattern))
		}
	}
	return errs
}
