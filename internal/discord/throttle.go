package discord

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Throttle lets one announcement through per channel per window. Entries
// expire on their own and the channel set is capped, so idle channels cost
// nothing.
type Throttle struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
}

func NewThrottle(channels int, every time.Duration) *Throttle {
	if channels < 1 {
		channels = 1
	}
	return &Throttle{seen: expirable.NewLRU[string, time.Time](channels, nil, every)}
}

// Allow reports whether channelID may announce now, and if so starts its window.
func (t *Throttle) Allow(channelID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen.Get(channelID); ok {
		return false
	}
	t.seen.Add(channelID, now)
	return true
}

func (t *Throttle) Len() int {
	return t.seen.Len()
}
