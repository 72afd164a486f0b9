package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 60 * time.Second
)

// State 当前退避状态的快照，便于日志与测试观察
type State struct {
	ConsecutiveThrottles int
	CurrentBackoff       time.Duration
	BlockedUntil         time.Time // 零值表示未被限流
}

// Controller 单个数据源的限流退避控制器。
// 每个源独占一个实例，互不影响；状态只存活在进程内。
// 限流信号到达时：首次取 base，之后翻倍直到 cap；任何一次成功调用都把退避重置回 base。
type Controller struct {
	mu sync.Mutex

	base time.Duration
	max  time.Duration

	consecutiveThrottles int
	currentBackoff       time.Duration
	blockedUntil         time.Time

	// now 可注入，测试时固定时钟
	now func() time.Time
}

func NewController(base, max time.Duration) *Controller {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return &Controller{base: base, max: max, now: time.Now}
}

// RecordThrottle 上报一次限流信号，返回本次生效的退避时长
func (c *Controller) RecordThrottle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blockedUntil.IsZero() {
		c.currentBackoff = c.base
	} else {
		c.currentBackoff *= 2
		if c.currentBackoff > c.max {
			c.currentBackoff = c.max
		}
	}
	c.consecutiveThrottles++
	c.blockedUntil = c.now().Add(c.currentBackoff)
	return c.currentBackoff
}

// RecordSuccess 任何一次成功调用后：清零限流计数，退避回到 base（而不是 0，
// 下一次限流从 base 重新起算），解除 blocked_until
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveThrottles = 0
	c.currentBackoff = c.base
	c.blockedUntil = time.Time{}
}

// Delay 返回距离 blocked_until 还需等待的时长；未被限流返回 0
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blockedUntil.IsZero() {
		return 0
	}
	d := c.blockedUntil.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// Wait 阻塞到 blocked_until 过去为止；可被 ctx 取消
func (c *Controller) Wait(ctx context.Context) error {
	d := c.Delay()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot 返回当前状态快照
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		ConsecutiveThrottles: c.consecutiveThrottles,
		CurrentBackoff:       c.currentBackoff,
		BlockedUntil:         c.blockedUntil,
	}
}

// SetClock 仅供测试注入固定时钟
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
