package session

import (
	"context"
	"sync"
	"time"

	"tzappu-go/pkg/log"
)

// DefaultCleanupInterval 是空闲会话清理的默认执行间隔。
const DefaultCleanupInterval = time.Minute

// Janitor 周期性地淘汰空闲会话，避免注册表无限增长。
type Janitor struct {
	manager  *Manager
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewJanitor 创建一个清理器，interval 不大于 0 时使用默认间隔。
func NewJanitor(manager *Manager, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Janitor{
		manager:  manager,
		interval: interval,
	}
}

// Start 启动后台清理循环，重复调用无副作用。
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.run(runCtx, j.done)
}

// Stop 停止清理循环并等待其退出。
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()

	cancel()
	<-done
}

// IsRunning 返回清理循环是否正在运行。
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("会话清理任务已停止")
			return
		case <-ticker.C:
			if removed := j.manager.EvictIdle(); removed > 0 {
				stats := j.manager.Stats()
				log.Infow("已淘汰空闲会话", "removed", removed, "total", stats["total"])
			}
		}
	}
}
