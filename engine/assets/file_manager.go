package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/resources"
)

var ErrWatcherClosed = errors.New("file watcher already closed")

// FileManager resolves resource file names against a list of search
// directories and reports changes to files below them.
type FileManager struct {
	mu         sync.RWMutex
	searchDirs []string

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewFileManager(searchDirs ...string) (*FileManager, error) {
	fm := &FileManager{}
	for _, dir := range searchDirs {
		if err := fm.AddSearchDir(dir); err != nil {
			return nil, err
		}
	}
	return fm, nil
}

// AddSearchDir appends dir to the search directories. Directories added
// after Watch are watched as well.
func (fm *FileManager) AddSearchDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if slices.Contains(fm.searchDirs, abs) {
		return nil
	}
	fm.searchDirs = append(fm.searchDirs, abs)
	if fm.watcher != nil {
		return fm.watchRecursive(abs)
	}
	return nil
}

func (fm *FileManager) SearchDirs() []string {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return slices.Clone(fm.searchDirs)
}

// SearchFor returns the full path of filename. Every search directory is
// tried with the type's sub directory first, then without it. Absolute
// paths and paths relative to the working directory are accepted as they
// are.
func (fm *FileManager) SearchFor(filename string, t resources.ResourceType) (string, error) {
	if filename == "" {
		return "", resources.ErrNoPath
	}
	if filepath.IsAbs(filename) {
		if isFile(filename) {
			return filename, nil
		}
		return "", fmt.Errorf("%w: %s", resources.ErrFileNotFound, filename)
	}

	for _, dir := range fm.SearchDirs() {
		if sub := t.DirName(); sub != "" {
			if p := filepath.Join(dir, sub, filename); isFile(p) {
				return p, nil
			}
		}
		if p := filepath.Join(dir, filename); isFile(p) {
			return p, nil
		}
	}
	if isFile(filename) {
		return filepath.Abs(filename)
	}
	return "", fmt.Errorf("%w: %s", resources.ErrFileNotFound, filename)
}

func isFile(path string) bool {
	s, err := os.Stat(path)
	return err == nil && !s.IsDir()
}

// Watch starts watching every search directory recursively. onChanged is
// called from the watcher goroutine with the path of each created or
// written file, and a FILE_CHANGED event is fired with the same path.
func (fm *FileManager) Watch(onChanged func(path string)) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fm.watcher = w
	for _, dir := range fm.searchDirs {
		if err := fm.watchRecursive(dir); err != nil {
			fm.watcher = nil
			w.Close()
			return err
		}
	}

	fm.done = make(chan struct{})
	fm.wg.Add(1)
	go fm.run(w, fm.done, onChanged)
	core.LogInfo("watching %d search directories for changes", len(fm.searchDirs))
	return nil
}

// IsWatching is true between Watch and Close.
func (fm *FileManager) IsWatching() bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.watcher != nil
}

func (fm *FileManager) run(w *fsnotify.Watcher, done <-chan struct{}, onChanged func(string)) {
	defer fm.wg.Done()
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			isDir := err == nil && s.IsDir()
			if isDir && e.Op&fsnotify.Create != 0 {
				fm.mu.Lock()
				if err := fm.watchRecursive(e.Name); err != nil {
					core.LogWarn("failed to watch new directory %s: %s", e.Name, err)
				}
				fm.mu.Unlock()
			}
			if !isDir && e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				fm.fileChanged(e.Name, onChanged)
			}
			// can't stat a removed path, it may or may not have been a watched directory
			if e.Op&fsnotify.Remove != 0 {
				_ = w.Remove(e.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			core.LogError("file watcher: %s", err)

		case <-done:
			return
		}
	}
}

func (fm *FileManager) fileChanged(path string, onChanged func(string)) {
	core.LogDebug("file changed: %s", path)
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_FILE_CHANGED, Sender: fm, Data: path})
	if onChanged != nil {
		onChanged(path)
	}
}

// watchRecursive adds dir and its sub directories to the watcher. Must hold mu.
func (fm *FileManager) watchRecursive(dir string) error {
	if fm.watcher == nil {
		return ErrWatcherClosed
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fm.watcher.Add(path)
		}
		return nil
	})
}

// Close stops the watcher. The FileManager keeps resolving paths.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	w := fm.watcher
	if w == nil {
		fm.mu.Unlock()
		return nil
	}
	fm.watcher = nil
	close(fm.done)
	fm.mu.Unlock()

	fm.wg.Wait()
	return w.Close()
}
