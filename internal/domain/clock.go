package domain

import "github.com/jonboulle/clockwork"

// fetchClock stamps FetchedAt on payloads without _metadata.fetched_at.
var fetchClock = clockwork.NewRealClock()

// SetClock swaps the time source used when a payload carries no fetch
// timestamp. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		fetchClock = clockwork.NewRealClock()
		return
	}
	fetchClock = c
}
