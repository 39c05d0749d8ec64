package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Handler 处理一个就绪的PDF文件
type Handler func(ctx context.Context, path string) error

// Watcher 监听收件目录，新写入的PDF在停止变化后交给 Handler 入库
// 文件按到达顺序逐个处理；同一文件内容未变化时不会重复处理
type Watcher struct {
	dir          string
	handler      Handler
	debounce     time.Duration
	scanExisting bool
	logger       *logrus.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]time.Time
	jobs   chan string
}

// Option 监听器配置选项
type Option func(*Watcher)

// WithDebounce 设置文件停止变化多久后开始处理
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithScanExisting 启动时处理目录中已有的PDF
func WithScanExisting(enabled bool) Option {
	return func(w *Watcher) {
		w.scanExisting = enabled
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New 创建监听器
func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: 2 * time.Second,
		logger:   logrus.StandardLogger(),
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]time.Time),
		jobs:     make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 开始监听，阻塞直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()
	defer wg.Wait()
	defer w.stopTimers()

	w.logger.WithField("dir", w.dir).Info("Watching inbox for PDF files")
	if w.scanExisting {
		w.scan()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !IsPDF(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

// scan 将目录中已有的PDF加入处理队列
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to scan watch directory")
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && IsPDF(e.Name()) {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
}

// schedule 重置文件的防抖计时器
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.jobs <- path:
		default:
			w.logger.WithField("path", path).Warn("Ingest queue full, dropping file event")
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// work 逐个处理就绪的文件
func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.jobs:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	logger := w.logger.WithField("path", path)
	info, err := os.Stat(path)
	if err != nil {
		logger.WithError(err).Debug("File disappeared before ingestion")
		return
	}

	w.mu.Lock()
	last, done := w.seen[path]
	w.mu.Unlock()
	if done && last.Equal(info.ModTime()) {
		return
	}

	if err := w.handler(ctx, path); err != nil {
		logger.WithError(err).Error("Failed to ingest watched file")
		return
	}

	w.mu.Lock()
	w.seen[path] = info.ModTime()
	w.mu.Unlock()
	logger.Info("Watched file ingested")
}

// IsPDF 判断文件名是否为PDF
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
