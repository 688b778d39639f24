package services

import "time"

// TimerHandle 一次定时任务的句柄，Cancel 返回是否在触发前取消成功
type TimerHandle interface {
	Cancel() bool
}

// Scheduler 可取消的延时调度抽象，测试中用可控实现替换
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

type realScheduler struct{}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) Cancel() bool {
	return t.timer.Stop()
}

func (s *realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return &realTimer{timer: time.AfterFunc(d, fn)}
}

// NewScheduler 创建基于 time.AfterFunc 的调度器
func NewScheduler() Scheduler {
	return &realScheduler{}
}
