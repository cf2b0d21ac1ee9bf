// Package domain holds the plain data types shared across components: wallets,
// signatures, alerts, API keys, subscriptions, and the supporting enums.
package domain

import "time"

// Tier is the access level gating rate limits and alert content enrichment.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// Confidence is the coarse label derived from the Profit Estimator's sub-metrics.
type Confidence string

const (
	ConfidenceLow  Confidence = "low"
	ConfidenceMed  Confidence = "med"
	ConfidenceHigh Confidence = "high"
)

// Wallet is a watched address plus its baseline performance, sourced from the
// external seed file. Baseline fields are treated as opaque filter inputs — their
// precise semantics are not specified (spec §9 open question).
type Wallet struct {
	Address          string
	NetTotal         float64
	WinRate          float64
	TotalTransactions int
	DexLabel         string
	DurationHours    float64
}

// Signature is an observed transaction reference for a wallet.
type Signature struct {
	Value string
	Slot  uint64
	Err   bool
}

// SubMetrics are the four measurable inputs to the confidence score.
type SubMetrics struct {
	PriceCoverage    float64 `json:"price_coverage"`
	RouteComplexity  float64 `json:"route_complexity"`
	FeeCompleteness  float64 `json:"fee_completeness"`
	BalanceAlignment float64 `json:"balance_alignment"`
	TotalTokens      int     `json:"total_tokens"`
	PricedTokens     int     `json:"priced_tokens"`
	UniqueMints      int     `json:"unique_mints"`
	TotalInnerInst   int     `json:"total_inner_inst"`
}

// ProfitResult is the output of the Profit Estimator for one batch of signatures.
type ProfitResult struct {
	Profit         float64
	Confidence     Confidence
	Counterparties []string
	Programs       []string
	SubMetrics     SubMetrics
}

// Alert is one emitted signal. Immutable after creation.
type Alert struct {
	ID               string     `json:"id"`
	Wallet           string     `json:"wallet"`
	Profit           float64    `json:"profit"`
	VenueLabel       string     `json:"venue"`
	SignalType       string     `json:"signal_type"`
	ZScore           float64    `json:"z_score"`
	Confidence       Confidence `json:"confidence"`
	SubMetrics       SubMetrics `json:"confidence_reasons"`
	PrimarySignature string     `json:"primary_signature"`
	DetectionMS      int64      `json:"detection_ms"`
	CreatedAt        time.Time  `json:"created_at"`
	Tier             Tier       `json:"tier"`
	DryRun           bool       `json:"dry_run"`
	Counterparties   []string   `json:"counterparties,omitempty"`
}

// BlockedAlert records a candidate that failed the filter gauntlet (spec §4.5 step 7).
type BlockedAlert struct {
	Wallet    string    `json:"wallet"`
	Profit    float64   `json:"profit"`
	Reason    string    `json:"reason"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// ApiKey is an opaque bearer token's persisted record; only the hash is stored.
type ApiKey struct {
	ID        int64
	KeyHash   string
	Tier      Tier
	CreatedAt time.Time
	ExpiresAt *time.Time
	IsActive  bool
}

// SubscriptionStatus is the lifecycle state of a Subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription links an external billing subscription to an ApiKey.
type Subscription struct {
	ID                     int64
	ApiKeyID               int64
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Tier                   Tier
	Status                 SubscriptionStatus
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
