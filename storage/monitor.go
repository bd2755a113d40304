package storage

import (
	"context"
	"time"

	"github.com/vocdoni/ticketvote/log"
)

// StartMonitor periodically logs the registry and epoch counters until ctx
// is done.
func (s *Storage) StartMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.logStats()
			}
		}
	}()
}

func (s *Storage) logStats() {
	counts, err := s.CountNullifiers()
	if err != nil {
		log.Warnw("could not count nullifiers", "error", err)
		return
	}
	fields := map[string]any{
		"admitted": s.Reserved(),
		"counted":  counts[NullifierCounted],
	}
	if e, err := s.Epoch(); err == nil {
		fields["ballots"] = e.Ballots
		fields["open"] = e.Open
	}
	log.Monitor("storage stats", fields)
}
