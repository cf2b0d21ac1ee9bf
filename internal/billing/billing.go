// Package billing turns Stripe-shaped subscription webhooks into API keys,
// mirroring subscriptions into the subscriptions table (spec §4.7, §6).
package billing

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/domain"
)

// priceTierMapping maps a Stripe price ID to a tier for accounts that set up
// dedicated prices per tier rather than relying on subscription metadata.
var priceTierMapping = map[string]domain.Tier{
	"price_free":  domain.TierFree,
	"price_pro":   domain.TierPro,
	"price_elite": domain.TierElite,
}

// SubscriptionEvent is the subset of a Stripe `customer.subscription.*` event
// payload this service understands.
type SubscriptionEvent struct {
	ID           string
	CustomerID   string
	Status       string
	PriceID      string
	MetadataTier string
}

func (e SubscriptionEvent) tier() domain.Tier {
	if t, ok := priceTierMapping[e.PriceID]; ok {
		return t
	}
	if e.MetadataTier != "" {
		return domain.Tier(e.MetadataTier)
	}
	return domain.TierFree
}

// Service dispatches subscription lifecycle events into apiauth + subscriptions.
type Service struct {
	auth *apiauth.Auth
	db   *sql.DB
}

// New builds a Service.
func New(auth *apiauth.Auth, db *sql.DB) *Service {
	return &Service{auth: auth, db: db}
}

// HandleWebhook dispatches by Stripe event type, returning the raw API key for
// a creation event. Unrecognized event types are ignored (return "", nil).
func (s *Service) HandleWebhook(eventType string, event SubscriptionEvent) (string, error) {
	switch eventType {
	case "customer.subscription.created":
		return s.handleCreated(event)
	case "customer.subscription.updated":
		return s.handleUpdated(event)
	case "customer.subscription.deleted":
		return s.handleDeleted(event)
	default:
		return "", nil
	}
}

func (s *Service) handleCreated(event SubscriptionEvent) (string, error) {
	tier := event.tier()
	rawKey, keyHash, err := s.auth.CreateKey(tier, nil)
	if err != nil {
		return "", fmt.Errorf("create api key: %w", err)
	}

	var apiKeyID int64
	if err := s.db.QueryRow("SELECT id FROM api_keys WHERE key_hash = ?", keyHash).Scan(&apiKeyID); err != nil {
		return "", fmt.Errorf("lookup created api key: %w", err)
	}

	now := float64(time.Now().Unix())
	_, err = s.db.Exec(
		`INSERT INTO subscriptions (api_key_id, external_customer_id, external_subscription_id, tier, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'active', ?, ?)`,
		apiKeyID, event.CustomerID, event.ID, string(tier), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert subscription: %w", err)
	}
	return rawKey, nil
}

func (s *Service) handleUpdated(event SubscriptionEvent) (string, error) {
	var apiKeyID int64
	err := s.db.QueryRow("SELECT api_key_id FROM subscriptions WHERE external_subscription_id = ?", event.ID).Scan(&apiKeyID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}

	tier := event.tier()
	status := event.Status
	if status == "" {
		status = "active"
	}

	var keyHash string
	if err := s.db.QueryRow("SELECT key_hash FROM api_keys WHERE id = ?", apiKeyID).Scan(&keyHash); err != nil {
		return "", fmt.Errorf("lookup api key hash: %w", err)
	}
	if _, err := s.db.Exec("UPDATE api_keys SET tier = ? WHERE id = ?", string(tier), apiKeyID); err != nil {
		return "", fmt.Errorf("update tier: %w", err)
	}

	_, err = s.db.Exec(
		"UPDATE subscriptions SET tier = ?, status = ?, updated_at = ? WHERE external_subscription_id = ?",
		string(tier), status, float64(time.Now().Unix()), event.ID,
	)
	if err != nil {
		return "", fmt.Errorf("update subscription: %w", err)
	}
	return keyHash, nil
}

func (s *Service) handleDeleted(event SubscriptionEvent) (string, error) {
	var apiKeyID int64
	err := s.db.QueryRow("SELECT api_key_id FROM subscriptions WHERE external_subscription_id = ?", event.ID).Scan(&apiKeyID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}

	var keyHash string
	if err := s.db.QueryRow("SELECT key_hash FROM api_keys WHERE id = ?", apiKeyID).Scan(&keyHash); err != nil {
		return "", fmt.Errorf("lookup api key hash: %w", err)
	}
	if _, err := s.db.Exec("UPDATE api_keys SET is_active = 0 WHERE id = ?", apiKeyID); err != nil {
		return "", fmt.Errorf("deactivate api key: %w", err)
	}

	_, err = s.db.Exec(
		"UPDATE subscriptions SET status = 'cancelled', updated_at = ? WHERE external_subscription_id = ?",
		float64(time.Now().Unix()), event.ID,
	)
	if err != nil {
		return "", fmt.Errorf("cancel subscription: %w", err)
	}
	return keyHash, nil
}

// ActiveSubscriptionCounts returns the count of active subscriptions per tier,
// used to populate the active-subscriptions gauge (spec §9 observability).
func (s *Service) ActiveSubscriptionCounts() (map[domain.Tier]int, error) {
	rows, err := s.db.Query("SELECT tier, COUNT(*) FROM subscriptions WHERE status = 'active' GROUP BY tier")
	if err != nil {
		return nil, fmt.Errorf("count active subscriptions: %w", err)
	}
	defer rows.Close()

	counts := map[domain.Tier]int{domain.TierFree: 0, domain.TierPro: 0, domain.TierElite: 0}
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("scan subscription count: %w", err)
		}
		counts[domain.Tier(tier)] = count
	}
	return counts, rows.Err()
}

// FakeCheckout creates a subscription and API key directly, bypassing the Stripe
// webhook round-trip, for the MVP self-serve signup flow (spec §4.7, §6).
func (s *Service) FakeCheckout(tier domain.Tier, email string) (apiKey string, subscriptionID string, err error) {
	rawKey, keyHash, err := s.auth.CreateKey(tier, nil)
	if err != nil {
		return "", "", fmt.Errorf("create api key: %w", err)
	}

	var apiKeyID int64
	if err := s.db.QueryRow("SELECT id FROM api_keys WHERE key_hash = ?", keyHash).Scan(&apiKeyID); err != nil {
		return "", "", fmt.Errorf("lookup created api key: %w", err)
	}

	now := time.Now()
	subscriptionID = fmt.Sprintf("fake_sub_%d", now.Unix())
	_, err = s.db.Exec(
		`INSERT INTO subscriptions (api_key_id, external_customer_id, external_subscription_id, tier, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'active', ?, ?)`,
		apiKeyID, email, subscriptionID, string(tier), float64(now.Unix()), float64(now.Unix()),
	)
	if err != nil {
		return "", "", fmt.Errorf("insert fake subscription: %w", err)
	}
	return rawKey, subscriptionID, nil
}
