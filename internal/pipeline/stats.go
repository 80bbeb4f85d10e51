package pipeline

import "sync/atomic"

// Stats counts frames for one run. It is safe to read from other goroutines.
type Stats struct {
	emitted  atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
	lastFnum atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Emitted  uint64 `json:"emitted"`
	Dropped  uint64 `json:"dropped"`
	Written  uint64 `json:"written"`
	LastFnum uint64 `json:"last_fnum"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Emitted:  s.emitted.Load(),
		Dropped:  s.dropped.Load(),
		Written:  s.written.Load(),
		LastFnum: s.lastFnum.Load(),
	}
}
