// Package statestore holds the in-memory working state (seen signatures, per-wallet
// last signature, per-wallet last-alert instant) and persists it to the shared sqlite
// database on cadence and at shutdown (spec §4.4).
package statestore

import (
	"container/list"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type seenEntry struct {
	signature string
	seenAt    time.Time
}

// Store is the in-memory working state guarded by a single mutex; persistence to
// sqlite happens out of band via Save/Load.
type Store struct {
	mu sync.Mutex

	seenOrder *list.List
	seenIndex map[string]*list.Element

	lastSigByWallet map[string]string
	lastAlertAt     map[string]time.Time

	stateTTL          time.Duration
	maxSeenSignatures int

	db  *sql.DB
	log zerolog.Logger
}

// New builds an empty Store. Call Load to populate it from sqlite at startup.
func New(db *sql.DB, stateTTL time.Duration, maxSeenSignatures int, log zerolog.Logger) *Store {
	return &Store{
		seenOrder:         list.New(),
		seenIndex:         make(map[string]*list.Element),
		lastSigByWallet:   make(map[string]string),
		lastAlertAt:       make(map[string]time.Time),
		stateTTL:          stateTTL,
		maxSeenSignatures: maxSeenSignatures,
		db:                db,
		log:               log.With().Str("component", "statestore").Logger(),
	}
}

// HasSeen reports whether signature was already recorded via MarkSeen.
func (s *Store) HasSeen(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seenIndex[signature]
	return ok
}

// MarkSeen records signature as seen now, evicting the oldest entry past the cap.
func (s *Store) MarkSeen(signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.seenIndex[signature]; ok {
		s.seenOrder.MoveToBack(el)
		el.Value.(*seenEntry).seenAt = time.Now()
		return
	}

	el := s.seenOrder.PushBack(&seenEntry{signature: signature, seenAt: time.Now()})
	s.seenIndex[signature] = el

	for s.seenOrder.Len() > s.maxSeenSignatures {
		s.evictOldestLocked()
	}
}

func (s *Store) evictOldestLocked() {
	front := s.seenOrder.Front()
	if front == nil {
		return
	}
	entry := front.Value.(*seenEntry)
	delete(s.seenIndex, entry.signature)
	s.seenOrder.Remove(front)
}

// LastSignature returns the last-processed signature recorded for wallet.
func (s *Store) LastSignature(wallet string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.lastSigByWallet[wallet]
	return sig, ok
}

// SetLastSignature updates the last-processed signature for wallet.
func (s *Store) SetLastSignature(wallet, signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSigByWallet[wallet] = signature
}

// LastAlertAt returns the instant of wallet's last accepted alert.
func (s *Store) LastAlertAt(wallet string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastAlertAt[wallet]
	return ts, ok
}

// SetLastAlertAt records now as wallet's last accepted alert instant.
func (s *Store) SetLastAlertAt(wallet string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAlertAt[wallet] = now
}

// GC drops seen-signature and last-alert entries older than the configured TTL, and
// trims seen signatures back under the size cap. Safe to call on a ticker.
func (s *Store) GC(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.stateTTL)

	for {
		front := s.seenOrder.Front()
		if front == nil {
			break
		}
		entry := front.Value.(*seenEntry)
		if !entry.seenAt.Before(cutoff) {
			break
		}
		delete(s.seenIndex, entry.signature)
		s.seenOrder.Remove(front)
	}
	for s.seenOrder.Len() > s.maxSeenSignatures {
		s.evictOldestLocked()
	}

	for wallet, ts := range s.lastAlertAt {
		if ts.Before(cutoff) {
			delete(s.lastAlertAt, wallet)
		}
	}

	s.log.Debug().Int("seen_signatures", s.seenOrder.Len()).Int("tracked_wallets", len(s.lastAlertAt)).Msg("state gc complete")
}

// SeenCount reports the number of tracked signatures, for metrics/inspection.
func (s *Store) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenOrder.Len()
}
