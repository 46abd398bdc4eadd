package common

import (
	"errors"
	"math/big"
)

var (
	ErrBucketExceeded      = errors.New("bucket capacity exceeded")
	ErrBucketNotConfigured = errors.New("bucket window not configured")
)

// Bucket is a fixed-capacity budget that refills completely once the active
// window has elapsed. Times are unix seconds.
type Bucket struct {
	WindowStart uint64
	WindowSize  uint64
	Capacity    *big.Int
	Consumed    *big.Int
}

// NewBucket returns an empty bucket whose first window starts at start.
func NewBucket(start, windowSize uint64, capacity *big.Int) Bucket {
	return Bucket{
		WindowStart: start,
		WindowSize:  windowSize,
		Capacity:    cloneOrZero(capacity),
		Consumed:    big.NewInt(0),
	}
}

// Clone returns a deep copy of the bucket.
func (b Bucket) Clone() Bucket {
	b.Capacity = cloneOrZero(b.Capacity)
	b.Consumed = cloneOrZero(b.Consumed)
	return b
}

// Expired reports whether now lies at or past the end of the active window.
// A clock behind WindowStart never expires the window.
func (b Bucket) Expired(now uint64) bool {
	if now < b.WindowStart {
		return false
	}
	return now-b.WindowStart >= b.WindowSize
}

// Roll returns the bucket as seen at now. An expired window restarts at now
// rather than at the next aligned boundary, so idle periods leave no stale
// partial windows behind.
func (b Bucket) Roll(now uint64) Bucket {
	next := b.Clone()
	if next.Expired(now) {
		next.WindowStart = now
		next.Consumed = big.NewInt(0)
	}
	return next
}

// Remaining returns the unconsumed budget of the window active at now.
func (b Bucket) Remaining(now uint64) *big.Int {
	rolled := b.Roll(now)
	remaining := new(big.Int).Sub(rolled.Capacity, rolled.Consumed)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// ConsumeBucket verifies whether amount fits within the window active at now.
// The returned Bucket reflects the updated counters when the budget is not
// exceeded; on denial prev is returned unchanged.
func ConsumeBucket(prev Bucket, now uint64, amount *big.Int) (Bucket, error) {
	if prev.WindowSize == 0 {
		return prev, ErrBucketNotConfigured
	}
	next := prev.Roll(now)
	if amount == nil || amount.Sign() <= 0 {
		return next, nil
	}
	total := new(big.Int).Add(next.Consumed, amount)
	if total.Cmp(next.Capacity) > 0 {
		return prev, ErrBucketExceeded
	}
	next.Consumed = total
	return next, nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
