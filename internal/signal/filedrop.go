package signal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

const (
	processedDir = ".processed"
	// DefaultSettle is how long a dropped file must be left alone before it is read.
	DefaultSettle = 500 * time.Millisecond
)

// FileDrop reads files dropped into a directory. Filed items are moved to a
// .processed subdirectory on Ack. Watch adds fsnotify wake-ups so new files
// are picked up without waiting for the next poll.
type FileDrop struct {
	dir    string
	settle time.Duration
	logger *zap.Logger
	now    func() time.Time
	wake   chan struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileDrop creates a source over dir.
func NewFileDrop(dir string) *FileDrop {
	return &FileDrop{
		dir:    dir,
		settle: DefaultSettle,
		logger: zap.NewNop(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// WithSettle sets the minimum file age and the event debounce window.
func (f *FileDrop) WithSettle(d time.Duration) *FileDrop {
	f.settle = d
	return f
}

// WithLogger sets the diagnostic logger.
func (f *FileDrop) WithLogger(l *zap.Logger) *FileDrop {
	if l != nil {
		f.logger = l.Named("file_drop")
	}
	return f
}

// Name implements Source.
func (f *FileDrop) Name() string { return task.SourceFileDrop }

// Dir returns the watched directory.
func (f *FileDrop) Dir() string { return f.dir }

// Poll returns one signal per settled regular file, oldest name first.
func (f *FileDrop) Poll(ctx context.Context) ([]Signal, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read drop directory: %w", err)
	}

	var out []Signal
	for _, e := range entries {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if f.now().Sub(info.ModTime()) < f.settle {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			f.logger.Warn("failed to read dropped file", zap.String("file", name), zap.Error(err))
			continue
		}
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:8])
		out = append(out, Signal{
			ID:       "file_drop:" + name + ":" + hash,
			Source:   task.SourceFileDrop,
			Subject:  name,
			Text:     string(data),
			Received: info.ModTime().UTC(),
			Meta:     map[string]string{"filename": name, "hash": hash},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// Ack moves the file behind sig into the processed directory. The content
// hash is part of the processed name so a later drop reusing the file name
// does not replace an earlier one.
func (f *FileDrop) Ack(_ context.Context, sig Signal) error {
	name := sig.Meta["filename"]
	if name == "" {
		return fmt.Errorf("signal %s has no filename", sig.ID)
	}
	dst := filepath.Join(f.dir, processedDir)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	err := os.Rename(filepath.Join(f.dir, name), filepath.Join(dst, processedName(name, sig.Meta["hash"])))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to move %s: %w", name, err)
	}
	return nil
}

// processedName inserts hash before the extension: report.pdf -> report.1a2b.pdf.
func processedName(name, hash string) string {
	if hash == "" {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + hash + ext
}

// Wake implements Waker.
func (f *FileDrop) Wake() <-chan struct{} { return f.wake }

// Watch starts watching the directory. It is a no-op when already watching.
func (f *FileDrop) Watch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create drop directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}
	f.watcher = w
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	go f.run(ctx, w, f.stopCh, f.doneCh)
	return nil
}

// Close stops watching and waits for the watch goroutine to exit.
func (f *FileDrop) Close() error {
	f.mu.Lock()
	w, stopCh, doneCh := f.watcher, f.stopCh, f.doneCh
	f.watcher = nil
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return w.Close()
}

func (f *FileDrop) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	tick := f.settle / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			f.mu.Lock()
			f.pending = f.now()
			f.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			f.mu.Lock()
			ready := !f.pending.IsZero() && f.now().Sub(f.pending) >= f.settle
			if ready {
				f.pending = time.Time{}
			}
			f.mu.Unlock()
			if ready {
				select {
				case f.wake <- struct{}{}:
				default:
				}
			}
		}
	}
}
