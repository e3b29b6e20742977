package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrUnknownTask = errors.New("scheduler: unknown task")

// Task is one run of a periodic job. ctx is cancelled by Stop.
type Task func(ctx context.Context) error

// TaskInfo is a snapshot of a registered ticker.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type ticker struct {
	interval time.Duration
	fn       Task
	stop     chan struct{}

	mu       sync.Mutex // serialises runs and guards the stats below
	runs     int64
	failures int64
	lastRun  time.Time
	lastErr  error
}

// Scheduler runs named tasks on fixed intervals.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*ticker
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*ticker),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTicker registers fn to run every interval, replacing any task with
// the same name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stop)
	}
	t := &ticker{interval: interval, fn: fn, stop: make(chan struct{})}
	s.tickers[name] = t

	s.wg.Add(1)
	go s.loop(name, t)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(name string, t *ticker) {
	defer s.wg.Done()
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			_ = s.run(name, t)
		case <-t.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(name string, t *ticker) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task %s panicked: %v", name, r)
		}
		t.runs++
		t.lastRun = time.Now()
		t.lastErr = err
		if err != nil {
			t.failures++
			s.logger.Error("scheduler task failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return t.fn(s.ctx)
}

// RunNow runs a registered task immediately on the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	t, ok := s.tickers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(name, t)
}

// Remove stops and forgets a task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickers[name]; ok {
		close(t.stop)
		delete(s.tickers, name)
	}
}

// Stop cancels every task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Tasks returns a snapshot of every task ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	tickers := make(map[string]*ticker, len(s.tickers))
	for k, v := range s.tickers {
		tickers[k] = v
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make([]TaskInfo, 0, len(names))
	for _, name := range names {
		t := tickers[name]
		t.mu.Lock()
		info := TaskInfo{
			Name:     name,
			Interval: t.interval,
			Runs:     t.runs,
			Failures: t.failures,
			LastRun:  t.lastRun,
		}
		if t.lastErr != nil {
			info.LastError = t.lastErr.Error()
		}
		t.mu.Unlock()
		out = append(out, info)
	}
	return out
}

// ListTickers returns the registered task names in order.
func (s *Scheduler) ListTickers() []string {
	tasks := s.Tasks()
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}
