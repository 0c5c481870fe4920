package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// TriggerFunc 在到达触发时间时被调度器回调，参数是基准测试定义 ID。
type TriggerFunc func(definitionID string)

// Scheduler 以固定间隔轮询登记的调度条目，到点触发。
// scheduled 类型触发一次后移除；recurring 类型触发后计算下次时间。
type Scheduler struct {
	tick    time.Duration
	trigger TriggerFunc
	logger  *logger.Logger

	mu      sync.Mutex
	entries map[string]*scheduleEntry
}

type scheduleEntry struct {
	def       *models.BenchmarkDefinition
	next      time.Time
	suspended bool // 暂停的周期基准不再触发新运行
}

// NewScheduler 创建一个 Scheduler。
func NewScheduler(tick time.Duration, trigger TriggerFunc, log *logger.Logger) *Scheduler {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return &Scheduler{
		tick:    tick,
		trigger: trigger,
		logger:  log,
		entries: make(map[string]*scheduleEntry),
	}
}

// Add 登记一个带调度配置的基准测试定义。immediate 类型不进入调度器。
func (s *Scheduler) Add(def *models.BenchmarkDefinition) {
	if def.Schedule == nil || def.Schedule.Type == models.ScheduleImmediate {
		return
	}
	next := firstFire(def.Schedule, time.Now())
	s.mu.Lock()
	s.entries[def.ID] = &scheduleEntry{def: def, next: next}
	s.mu.Unlock()

	s.logger.WithPayload(map[string]interface{}{
		"definitionID": def.ID,
		"next":         next.Format(time.RFC3339),
	}).Info("Benchmark scheduled")
}

// Remove 取消一个定义的后续触发。
func (s *Scheduler) Remove(definitionID string) {
	s.mu.Lock()
	delete(s.entries, definitionID)
	s.mu.Unlock()
}

// Suspend 暂停一个周期定义的触发，已登记的下次触发时间保持不变。
func (s *Scheduler) Suspend(definitionID string) {
	s.mu.Lock()
	if e, ok := s.entries[definitionID]; ok {
		e.suspended = true
	}
	s.mu.Unlock()
}

// Resume 恢复一个被暂停的周期定义。
func (s *Scheduler) Resume(definitionID string) {
	s.mu.Lock()
	if e, ok := s.entries[definitionID]; ok {
		e.suspended = false
	}
	s.mu.Unlock()
}

// Run 启动轮询循环，直到 ctx 结束。
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue 触发所有到点的条目。
func (s *Scheduler) fireDue(now time.Time) {
	var due []string

	s.mu.Lock()
	for id, e := range s.entries {
		if e.suspended || e.next.After(now) {
			continue
		}
		due = append(due, id)
		if e.def.Schedule.Type == models.ScheduleRecurring {
			e.next = nextFire(e.def.Schedule, now)
		} else {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		s.logger.WithPayload(map[string]interface{}{"definitionID": id}).Info("Schedule fired")
		s.trigger(id)
	}
}

// firstFire 计算定义登记后的首次触发时间。
func firstFire(sched *models.Schedule, now time.Time) time.Time {
	if sched.Type == models.ScheduleOnce {
		return sched.StartAt
	}
	start := sched.StartAt
	if start.IsZero() || start.Before(now) {
		start = now
	}
	return refine(sched, start)
}

// nextFire 计算周期调度在本次触发之后的下次触发时间。
func nextFire(sched *models.Schedule, fired time.Time) time.Time {
	interval := sched.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return refine(sched, fired.Add(interval))
}

// refine 将候选时间按周几/每月几号的约束向后推到首个满足的日期。
func refine(sched *models.Schedule, candidate time.Time) time.Time {
	for i := 0; i < 366; i++ {
		if matchesDay(sched, candidate) {
			return candidate
		}
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

func matchesDay(sched *models.Schedule, t time.Time) bool {
	if sched.DayOfMonth > 0 && t.Day() != sched.DayOfMonth {
		return false
	}
	if len(sched.DaysOfWeek) > 0 {
		for _, d := range sched.DaysOfWeek {
			if t.Weekday() == d {
				return true
			}
		}
		return false
	}
	return true
}
