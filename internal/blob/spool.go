package blob

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SpoolHandler is called once for each file that has settled in the spool
// directory. Returning an error leaves the file in place for a later retry.
type SpoolHandler func(ctx context.Context, path string) error

// SpoolConfig configures the attachment spool watcher.
type SpoolConfig struct {
	// Dir is the watched spool directory. Files dropped here become
	// attachments via the handler.
	Dir string

	// SettleInterval is how long a file must be quiet before it is handed
	// off. Batches rapid writes from copying tools.
	SettleInterval time.Duration

	Logger *log.Logger
}

// Spool watches a drop directory and hands settled files to a handler,
// typically the attachments repository.
type Spool struct {
	config  SpoolConfig
	handler SpoolHandler

	watcher   *fsnotify.Watcher
	pending   map[string]time.Time
	pendingMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSpool creates a spool watcher. Call Start to begin watching.
func NewSpool(config SpoolConfig, handler SpoolHandler) (*Spool, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("spool dir cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("spool handler cannot be nil")
	}
	if config.SettleInterval <= 0 {
		config.SettleInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[spool] ", log.LstdFlags)
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Spool{
		config:  config,
		handler: handler,
		watcher: watcher,
		pending: make(map[string]time.Time),
	}, nil
}

// Start begins watching. Files already present in the spool are queued
// immediately so nothing dropped while the daemon was down is missed.
func (s *Spool) Start(ctx context.Context) error {
	if err := s.watcher.Add(s.config.Dir); err != nil {
		return fmt.Errorf("failed to watch spool dir: %w", err)
	}

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read spool dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			s.queue(filepath.Join(s.config.Dir, entry.Name()))
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.watchEvents(ctx)
	go s.drainPending(ctx)
	return nil
}

// Stop shuts the watcher down and waits for in-flight handlers.
func (s *Spool) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.watcher.Close()
	s.wg.Wait()
}

func (s *Spool) queue(path string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[path] = time.Now()
}

func (s *Spool) watchEvents(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.queue(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (s *Spool) drainPending(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processSettled(ctx)
		}
	}
}

func (s *Spool) processSettled(ctx context.Context) {
	s.pendingMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range s.pending {
		if now.Sub(queuedAt) >= s.config.SettleInterval {
			ready = append(ready, path)
			delete(s.pending, path)
		}
	}
	s.pendingMu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := s.handler(ctx, path); err != nil {
			s.config.Logger.Printf("Spool handler failed for %s: %v", path, err)
			// Requeue so a transient failure retries on the next tick.
			s.queue(path)
		}
	}
}
