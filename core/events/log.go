package events

import (
	"sync"

	"tokensale/core/types"
)

// Log is an append-only audit trail of rendered events. It is safe for
// concurrent readers while the host appends.
type Log struct {
	mu      sync.RWMutex
	records []*types.Event
	// appended is closed and replaced on every append.
	appended chan struct{}
}

// NewLog returns an empty event log.
func NewLog() *Log {
	return &Log{appended: make(chan struct{})}
}

// NewLogFrom returns a log holding copies of records, in order.
func NewLogFrom(records []*types.Event) *Log {
	l := NewLog()
	for _, record := range records {
		if record != nil {
			l.records = append(l.records, record.Clone())
		}
	}
	return l
}

// Emit implements the Emitter interface.
func (l *Log) Emit(evt Event) {
	rendered := Render(evt)
	if l == nil || rendered == nil {
		return
	}
	l.mu.Lock()
	l.records = append(l.records, rendered.Clone())
	if l.appended != nil {
		close(l.appended)
	}
	l.appended = make(chan struct{})
	l.mu.Unlock()
}

// Appended returns a channel that is closed by the next append.
func (l *Log) Appended() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appended == nil {
		l.appended = make(chan struct{})
	}
	return l.appended
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Since returns copies of the records at positions >= offset.
func (l *Log) Since(offset int) []*types.Event {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(l.records) {
		return []*types.Event{}
	}
	out := make([]*types.Event, 0, len(l.records)-offset)
	for _, record := range l.records[offset:] {
		out = append(out, record.Clone())
	}
	return out
}

// Records returns a copy of every recorded event.
func (l *Log) Records() []*types.Event {
	return l.Since(0)
}

// OfType filters the recorded events by type.
func (l *Log) OfType(eventType string) []*types.Event {
	var out []*types.Event
	for _, record := range l.Records() {
		if record.Type == eventType {
			out = append(out, record)
		}
	}
	return out
}
