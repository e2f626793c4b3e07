// Package worker runs the tracker's jobs on their schedules
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leettogether/leetstreak/internal/metrics"
)

var (
	// ErrUnknownJob is returned for a job name that was never added
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is triggered while it runs
	ErrJobRunning = errors.New("job already running")
)

// JobFunc is one run of a job
type JobFunc func(ctx context.Context) error

// Status describes a job
type Status struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Next      time.Time `json:"next,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int64     `json:"runs"`
	Skips     int64     `json:"skips"`
}

type job struct {
	name    string
	trigger Trigger
	run     JobFunc
	active  atomic.Bool
	runs    atomic.Int64
	skips   atomic.Int64

	mu      sync.Mutex
	next    time.Time
	lastRun time.Time
	lastID  string
	lastErr error
}

// Dispatcher fires jobs on their triggers. A job that is still running when
// it fires again is skipped, never run twice at once
type Dispatcher struct {
	jobs   map[string]*job
	order  []string
	now    func() time.Time
	logger *slog.Logger

	baseCtx context.Context
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewDispatcher creates a dispatcher. now may be nil to use the wall clock
func NewDispatcher(now func() time.Time, logger *slog.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		jobs:    make(map[string]*job),
		now:     now,
		logger:  logger,
		baseCtx: context.Background(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Add registers a job. It must be called before Start
func (d *Dispatcher) Add(name string, trigger Trigger, fn JobFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("adding job %s: dispatcher already started", name)
	}
	if _, ok := d.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	d.jobs[name] = &job{name: name, trigger: trigger, run: fn}
	d.order = append(d.order, name)
	return nil
}

// Start begins firing jobs
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.baseCtx = ctx
	d.mu.Unlock()

	d.logger.Info("dispatcher started", "jobs", len(d.order))

	var loops sync.WaitGroup
	for _, name := range d.order {
		j := d.jobs[name]
		loops.Add(1)
		go func() {
			defer loops.Done()
			d.loop(ctx, j)
		}()
	}
	go func() {
		loops.Wait()
		close(d.doneCh)
	}()
	return nil
}

// Stop stops firing jobs and waits for running ones to finish
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	<-d.doneCh
	d.runs.Wait()

	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) loop(ctx context.Context, j *job) {
	for {
		now := d.now()
		next := j.trigger.Next(now)
		j.mu.Lock()
		j.next = next
		j.mu.Unlock()

		d.logger.Debug("job scheduled", "job", j.name, "next", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			d.runs.Add(1)
			go func() {
				defer d.runs.Done()
				_, _ = d.execute(ctx, j, "schedule")
			}()
		}
	}
}

// execute runs j unless it is already running
func (d *Dispatcher) execute(ctx context.Context, j *job, source string) (string, error) {
	if !j.active.CompareAndSwap(false, true) {
		j.skips.Add(1)
		metrics.JobSkips.WithLabelValues(j.name).Inc()
		d.logger.Warn("job still running, skipping", "job", j.name, "source", source)
		return "", ErrJobRunning
	}
	defer j.active.Store(false)

	runID := uuid.NewString()
	start := time.Now()
	d.logger.Info("job started", "job", j.name, "run_id", runID, "source", source)

	err := d.safeRun(ctx, j)

	elapsed := time.Since(start)
	j.runs.Add(1)
	metrics.JobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())
	metrics.JobRuns.WithLabelValues(j.name, metrics.ResultLabel(err)).Inc()

	j.mu.Lock()
	j.lastRun = d.now()
	j.lastID = runID
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		d.logger.Error("job failed", "job", j.name, "run_id", runID, "duration", elapsed, "error", err)
		return runID, err
	}
	d.logger.Info("job completed", "job", j.name, "run_id", runID, "duration", elapsed)
	return runID, nil
}

func (d *Dispatcher) safeRun(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.run(ctx)
}

// RunOnce runs the named job now and waits for it. It returns the run id
func (d *Dispatcher) RunOnce(ctx context.Context, name string) (string, error) {
	j, ok := d.jobs[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return d.execute(ctx, j, "manual")
}

// Trigger starts the named job in the background. It fails fast if the job
// is unknown or already running
func (d *Dispatcher) Trigger(name string) error {
	j, ok := d.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if j.active.Load() {
		return ErrJobRunning
	}

	d.mu.Lock()
	ctx := d.baseCtx
	d.mu.Unlock()

	d.runs.Add(1)
	go func() {
		defer d.runs.Done()
		_, _ = d.execute(ctx, j, "manual")
	}()
	return nil
}

// Jobs reports the status of every job, sorted by name
func (d *Dispatcher) Jobs() []Status {
	out := make([]Status, 0, len(d.jobs))
	for _, j := range d.jobs {
		j.mu.Lock()
		st := Status{
			Name:      j.name,
			Schedule:  j.trigger.String(),
			Running:   j.active.Load(),
			Next:      j.next,
			LastRun:   j.lastRun,
			LastRunID: j.lastID,
			Runs:      j.runs.Load(),
			Skips:     j.skips.Load(),
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// IsRunning returns whether the dispatcher is started
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
