// Package watchlist tracks the set of actively-scanned wallets as a bounded,
// recency-ordered registry: seeded from the baseline wallet list and grown by
// auto-promotion when a watched wallet's profitable counterparty looks active
// (spec §4.5 step 11, §4.6).
package watchlist

import (
	"container/list"
	"sync"
	"time"

	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/metrics"
)

type entry struct {
	wallet    domain.Wallet
	touchedAt time.Time
}

// Watchlist is a thread-safe, size-bounded, recency-ordered registry of wallets.
type Watchlist struct {
	mu      sync.RWMutex
	order   *list.List
	index   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	metrics *metrics.Registry
}

// New builds an empty Watchlist bounded to maxSize entries, each evicted after ttl
// of inactivity.
func New(maxSize int, ttl time.Duration) *Watchlist {
	return &Watchlist{
		order:   list.New(),
		index:   make(map[string]*list.Element),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// SetMetrics attaches a metrics registry; the watchlist_size gauge (spec §4.6) is
// recorded immediately and after every subsequent mutation. Nil-safe if never
// called.
func (w *Watchlist) SetMetrics(m *metrics.Registry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics = m
	w.recordSizeLocked()
}

func (w *Watchlist) recordSizeLocked() {
	if w.metrics == nil {
		return
	}
	w.metrics.SetGauge("watchlist_size", "", float64(w.order.Len()))
}

// Seed inserts the baseline wallets, most-recently-touched last. The size cap
// applies as they go in, so from a list longer than maxSize only the last
// maxSize wallets remain.
func (w *Watchlist) Seed(wallets []domain.Wallet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for _, wallet := range wallets {
		w.insertLocked(wallet, now)
	}
	w.recordSizeLocked()
}

// Touch records an access to addr, moving it to most-recently-used. Returns false if
// addr is not on the watchlist.
func (w *Watchlist) Touch(addr string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	el, ok := w.index[addr]
	if !ok {
		return false
	}
	el.Value.(*entry).touchedAt = time.Now()
	w.order.MoveToBack(el)
	return true
}

// Contains reports whether addr is currently on the watchlist.
func (w *Watchlist) Contains(addr string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[addr]
	return ok
}

// TryPromote inserts a newly-discovered active counterparty, evicting the
// least-recently-touched entry if the watchlist is at capacity. No-op if addr is
// already present.
func (w *Watchlist) TryPromote(wallet domain.Wallet) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.index[wallet.Address]; ok {
		return false
	}
	w.insertLocked(wallet, time.Now())
	return true
}

func (w *Watchlist) insertLocked(wallet domain.Wallet, now time.Time) {
	if el, ok := w.index[wallet.Address]; ok {
		el.Value.(*entry).touchedAt = now
		w.order.MoveToBack(el)
		return
	}

	el := w.order.PushBack(&entry{wallet: wallet, touchedAt: now})
	w.index[wallet.Address] = el

	for w.order.Len() > w.maxSize {
		w.evictFrontLocked()
	}
	w.recordSizeLocked()
}

func (w *Watchlist) evictFrontLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	delete(w.index, e.wallet.Address)
	w.order.Remove(front)
}

// EvictStale removes entries untouched for longer than ttl.
func (w *Watchlist) EvictStale(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ttl <= 0 {
		return 0
	}

	cutoff := now.Add(-w.ttl)
	evicted := 0
	var next *list.Element
	for el := w.order.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*entry)
		if e.touchedAt.After(cutoff) {
			continue
		}
		delete(w.index, e.wallet.Address)
		w.order.Remove(el)
		evicted++
	}
	w.recordSizeLocked()
	return evicted
}

// Snapshot returns a defensive copy of the watched wallets, oldest-touched first.
func (w *Watchlist) Snapshot() []domain.Wallet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.Wallet, 0, w.order.Len())
	for el := w.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).wallet)
	}
	return out
}

// Len reports the current watchlist size.
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.order.Len()
}
