package state

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// spamRecord is the per-author anti-spam bookkeeping: when the author last
// spoke and what they said. Records survive a disconnect (a reconnecting
// player inherits their throttle window) and are only dropped on full reap.
type spamRecord struct {
	lastSent time.Time
	lastText string
}

// spamRecords is a thin wrapper over a non-expiring key-value cache, keyed
// by author. Entries never expire on their own; the reaper removes them
// explicitly.
type spamRecords struct {
	cacheInstance *gocache.Cache
}

func newSpamRecords() *spamRecords {
	return &spamRecords{cacheInstance: gocache.New(gocache.NoExpiration, 0)}
}

// get fetches an author's record, returning a zero record for first-time
// authors.
func (s *spamRecords) get(author string) spamRecord {
	if value, found := s.cacheInstance.Get(author); found {
		return value.(spamRecord)
	}
	return spamRecord{}
}

func (s *spamRecords) put(author string, rec spamRecord) {
	s.cacheInstance.Set(author, rec, gocache.NoExpiration)
}

func (s *spamRecords) remove(author string) {
	s.cacheInstance.Delete(author)
}
