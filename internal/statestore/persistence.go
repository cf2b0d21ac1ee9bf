package statestore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/solana-signal-daas/internal/database"
)

// Load populates the Store from the last_signatures/seen_signatures/last_alerts
// tables, applying the state TTL and seen-signature cap on the way in (spec §4.4).
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT wallet, signature FROM last_signatures")
	if err != nil {
		return fmt.Errorf("load last_signatures: %w", err)
	}
	for rows.Next() {
		var wallet, sig string
		if err := rows.Scan(&wallet, &sig); err != nil {
			rows.Close()
			return err
		}
		s.lastSigByWallet[wallet] = sig
	}
	rows.Close()

	cutoff := time.Now().Add(-s.stateTTL)

	sigRows, err := s.db.Query("SELECT signature, timestamp FROM seen_signatures ORDER BY timestamp ASC")
	if err != nil {
		return fmt.Errorf("load seen_signatures: %w", err)
	}
	type pair struct {
		sig string
		ts  float64
	}
	var pairs []pair
	for sigRows.Next() {
		var p pair
		if err := sigRows.Scan(&p.sig, &p.ts); err != nil {
			sigRows.Close()
			return err
		}
		if time.Unix(int64(p.ts), 0).Before(cutoff) {
			continue
		}
		pairs = append(pairs, p)
	}
	sigRows.Close()

	if len(pairs) > s.maxSeenSignatures {
		pairs = pairs[len(pairs)-s.maxSeenSignatures:]
	}
	for _, p := range pairs {
		el := s.seenOrder.PushBack(&seenEntry{signature: p.sig, seenAt: time.Unix(int64(p.ts), 0)})
		s.seenIndex[p.sig] = el
	}

	alertRows, err := s.db.Query("SELECT wallet, timestamp FROM last_alerts")
	if err != nil {
		return fmt.Errorf("load last_alerts: %w", err)
	}
	for alertRows.Next() {
		var wallet string
		var ts float64
		if err := alertRows.Scan(&wallet, &ts); err != nil {
			alertRows.Close()
			return err
		}
		t := time.Unix(int64(ts), 0)
		if t.Before(cutoff) {
			continue
		}
		s.lastAlertAt[wallet] = t
	}
	alertRows.Close()

	s.log.Info().
		Int("last_signatures", len(s.lastSigByWallet)).
		Int("seen_signatures", s.seenOrder.Len()).
		Int("last_alerts", len(s.lastAlertAt)).
		Msg("state loaded")

	return nil
}

// Save snapshots the in-memory state to sqlite within a single transaction,
// replacing each table's contents wholesale (spec §4.4).
func (s *Store) Save() error {
	s.mu.Lock()
	lastSig := make(map[string]string, len(s.lastSigByWallet))
	for k, v := range s.lastSigByWallet {
		lastSig[k] = v
	}
	lastAlert := make(map[string]time.Time, len(s.lastAlertAt))
	for k, v := range s.lastAlertAt {
		lastAlert[k] = v
	}
	var seen []seenEntry
	for el := s.seenOrder.Front(); el != nil; el = el.Next() {
		e := el.Value.(*seenEntry)
		seen = append(seen, *e)
	}
	s.mu.Unlock()

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM last_signatures"); err != nil {
			return err
		}
		for wallet, sig := range lastSig {
			if _, err := tx.Exec("INSERT INTO last_signatures (wallet, signature) VALUES (?, ?)", wallet, sig); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM seen_signatures"); err != nil {
			return err
		}
		for _, e := range seen {
			if _, err := tx.Exec("INSERT INTO seen_signatures (signature, timestamp) VALUES (?, ?)", e.signature, float64(e.seenAt.Unix())); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM last_alerts"); err != nil {
			return err
		}
		for wallet, ts := range lastAlert {
			if _, err := tx.Exec("INSERT INTO last_alerts (wallet, timestamp) VALUES (?, ?)", wallet, float64(ts.Unix())); err != nil {
				return err
			}
		}

		return nil
	})
}
