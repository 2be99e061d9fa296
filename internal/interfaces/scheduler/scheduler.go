package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ScheduleTime is a time of day, in the server's local zone, at which the
// scheduler fires.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	var rest string
	s = strings.TrimSpace(s)
	n, _ := fmt.Sscanf(s, "%d:%d%s", &hour, &minute, &rest)
	if n != 2 {
		return ScheduleTime{}, fmt.Errorf("invalid time format %q (expected HH:MM)", s)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

func (st ScheduleTime) minutes() int { return st.Hour*60 + st.Minute }

// JobProvider lists the jobs for one scheduled run.
type JobProvider func(context.Context) ([]Job, error)

// Config holds configuration for the scheduler.
type Config struct {
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	JobTimeout    time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
	Logger        *slog.Logger
	Clock         clock.Clock
}

// Scheduler submits the jobs returned by its JobProvider to a worker pool at
// each configured time of day.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider
	clock         clock.Clock
	logger        *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun string
	mu      sync.Mutex
}

// New creates a scheduler. Schedule times are sorted and deduplicated.
func New(config Config) (*Scheduler, error) {
	if config.JobProvider == nil {
		return nil, errors.New("job provider is required")
	}

	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}
	if len(scheduleTimes) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}
	slices.SortFunc(scheduleTimes, func(a, b ScheduleTime) int { return a.minutes() - b.minutes() })
	scheduleTimes = slices.Compact(scheduleTimes)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger.Info("scheduler initialized",
		"schedule_times", config.ScheduleTimes,
		"workers", config.WorkerCount,
		"job_delay", config.JobDelay,
		"job_timeout", config.JobTimeout,
	)

	return &Scheduler{
		workerPool:    NewWorkerPool(config.WorkerCount, config.JobDelay, config.JobTimeout, config.QueueSize, logger),
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		jobProvider:   config.JobProvider,
		clock:         clk,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduler loop and the worker pool.
func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		s.logger.Info("running initial job batch on startup")
		s.goRun()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	s.logger.Info("scheduler started", "next_run", s.NextScheduledTime())
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			now := s.clock.Now()
			if s.shouldRun(now) {
				s.logger.Info("scheduled run triggered", "at", now.Format("15:04"))
				s.runJobs()
			}
		}
	}
}

// shouldRun reports whether now falls on a scheduled minute that has not
// already fired.
func (s *Scheduler) shouldRun(now time.Time) bool {
	key := now.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == key {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = key
			return true
		}
	}

	return false
}

func (s *Scheduler) runJobs() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		s.logger.Error("failed to fetch jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		s.logger.Info("no jobs to process")
		return
	}

	s.workerPool.SubmitBatch(jobs)
}

func (s *Scheduler) goRun() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// TriggerNow starts a job run immediately.
func (s *Scheduler) TriggerNow() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("manual trigger")
	s.goRun()
}

// Shutdown stops scheduling new runs, then drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.logger.Info("scheduler shutting down")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("timed out waiting for scheduler loop to stop")
	}

	s.workerPool.ShutdownWithTimeout(timeout)

	s.logger.Info("scheduler shutdown complete")
}

// NextScheduledTime returns the next time the scheduler will fire.
func (s *Scheduler) NextScheduledTime() time.Time {
	now := s.clock.Now()

	for _, st := range s.scheduleTimes {
		next := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if next.After(now) {
			return next
		}
	}

	st := s.scheduleTimes[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), st.Hour, st.Minute, 0, 0, now.Location())
}

// ScheduleTimes returns the configured schedule times in order.
func (s *Scheduler) ScheduleTimes() []ScheduleTime {
	return slices.Clone(s.scheduleTimes)
}
