/*
 * @module service/scheduler/outlier_scheduler
 * @description 异常检测定时调度器，按 cron 表达式周期触发项目校验
 * @architecture 分层架构 - 服务层
 * @stateFlow 启动调度器 -> 注册 cron 任务 -> 到点获取分布式锁 -> 执行校验 -> 释放锁
 * @rules cron 表达式含秒位；同一项目同一时间只允许一个实例执行；单次运行失败不影响后续调度
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/outlier/outlier_service.go, service/init.go
 */

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"redcap-outlier-service/service/distributed_lock"

	"github.com/robfig/cron/v3"
)

// TriggerSchedule 定时触发标识
const TriggerSchedule = "schedule"

// RunFunc 一次项目校验
type RunFunc func(ctx context.Context, trigger string) error

// OutlierScheduler 异常检测调度器
type OutlierScheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	entryID   cron.EntryID
	run       RunFunc
	executor  *distributed_lock.LockExecutor
	lockKey   string
	lockTTL   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	lastError error
	lastRun   time.Time
}

// NewOutlierScheduler 创建调度器
func NewOutlierScheduler(run RunFunc, lock distributed_lock.DistributedLock, projectID string, lockTTL time.Duration) *OutlierScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &OutlierScheduler{
		cron:     cron.New(cron.WithSeconds()),
		run:      run,
		executor: distributed_lock.NewLockExecutor(lock),
		lockKey:  "project:" + projectID,
		lockTTL:  lockTTL,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 按 cron 表达式启动调度
func (s *OutlierScheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("调度器已经启动")
	}

	entryID, err := s.cron.AddFunc(spec, s.runScheduled)
	if err != nil {
		return fmt.Errorf("cron表达式无效 %q: %w", spec, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.started = true

	slog.Info("异常检测调度器启动完成", "schedule", spec, "next_run", s.cron.Entry(entryID).Next)
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *OutlierScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false
	slog.Info("异常检测调度器已停止")
}

// NextRun 下一次计划执行时间，未启动时返回 nil
func (s *OutlierScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}

// LastResult 最近一次定时执行的时间与错误
func (s *OutlierScheduler) LastResult() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastError
}

// runScheduled cron 回调
func (s *OutlierScheduler) runScheduled() {
	start := time.Now()
	executed, err := s.executor.ExecuteWithLockAndRefresh(s.ctx, s.lockKey, s.lockTTL, func(ctx context.Context) error {
		return s.run(ctx, TriggerSchedule)
	})

	if !executed && err == nil {
		return
	}

	s.mu.Lock()
	s.lastRun = start
	s.lastError = err
	s.mu.Unlock()

	if err != nil {
		slog.Error("定时异常检测失败", "lock_key", s.lockKey, "error", err, "duration", time.Since(start))
		return
	}
	slog.Info("定时异常检测完成", "lock_key", s.lockKey, "duration", time.Since(start))
}
