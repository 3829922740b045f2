package rotation

import "sync"

// ChannelLocks serializes read-modify-write cycles per channel. Rotation and
// pin operations on the same channel share one mutex; different channels
// never contend.
type ChannelLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewChannelLocks() *ChannelLocks {
	return &ChannelLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the channel's mutex and returns its unlock function.
func (l *ChannelLocks) Lock(channelID string) func() {
	l.mu.Lock()
	m, ok := l.locks[channelID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[channelID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
