package server

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// pushLimiter 每个通道独立的令牌桶，长期不活跃的通道随 LRU 淘汰
type pushLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newPushLimiter(rps float64, burst, size int) (*pushLimiter, error) {
	if rps <= 0 {
		return &pushLimiter{limit: rate.Inf}, nil
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &pushLimiter{limit: rate.Limit(rps), burst: burst, limiters: cache}, nil
}

// Allow 通道是否还有配额
func (l *pushLimiter) Allow(channel string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(channel)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(channel, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}
