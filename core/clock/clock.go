package clock

import (
	"sync"
	"time"

	"tokensale/core/types"
)

// Clock yields the chain position operations execute at.
type Clock interface {
	Now() types.BlockTime
}

// BlockClock derives block heights from wall-clock time: height N begins at
// Genesis + N*Interval.
type BlockClock struct {
	genesis  time.Time
	interval time.Duration
	nowFn    func() time.Time
}

// NewBlockClock returns a clock producing a new height every interval.
func NewBlockClock(genesis time.Time, interval time.Duration) *BlockClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &BlockClock{genesis: genesis, interval: interval, nowFn: time.Now}
}

// SetNowFunc overrides the wall-clock source. Primarily intended for tests.
func (c *BlockClock) SetNowFunc(now func() time.Time) {
	if now == nil {
		c.nowFn = time.Now
		return
	}
	c.nowFn = now
}

// Now implements Clock. Heights before genesis are reported as zero.
func (c *BlockClock) Now() types.BlockTime {
	now := c.nowFn()
	var height uint64
	if elapsed := now.Sub(c.genesis); elapsed > 0 {
		height = uint64(elapsed / c.interval)
	}
	var ts uint64
	if unix := now.Unix(); unix > 0 {
		ts = uint64(unix)
	}
	return types.BlockTime{Height: height, Timestamp: ts}
}

// HeightTime returns the wall-clock time at which height begins.
func (c *BlockClock) HeightTime(height uint64) time.Time {
	return c.genesis.Add(time.Duration(height) * c.interval)
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now types.BlockTime
}

func NewManual(start types.BlockTime) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() types.BlockTime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set replaces the current position.
func (m *Manual) Set(now types.BlockTime) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by the given number of blocks and seconds.
func (m *Manual) Advance(blocks, seconds uint64) types.BlockTime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now.Height += blocks
	m.now.Timestamp += seconds
	return m.now
}
