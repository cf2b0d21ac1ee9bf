package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/apiauth"
	"github.com/aristath/solana-signal-daas/internal/database"
	"github.com/aristath/solana-signal-daas/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileStandard, Name: "billing-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(apiauth.New(db.Conn()), db.Conn())
}

func TestSubscriptionCreatedIssuesKeyAtMetadataTier(t *testing.T) {
	s := newTestService(t)

	rawKey, err := s.HandleWebhook("customer.subscription.created", SubscriptionEvent{
		ID: "sub_1", CustomerID: "cus_1", MetadataTier: "pro",
	})
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)

	tier, ok := s.auth.Validate(rawKey)
	require.True(t, ok)
	require.Equal(t, domain.TierPro, tier)
}

func TestSubscriptionCreatedPriceIDOverridesMetadata(t *testing.T) {
	s := newTestService(t)

	rawKey, err := s.HandleWebhook("customer.subscription.created", SubscriptionEvent{
		ID: "sub_1", PriceID: "price_elite", MetadataTier: "free",
	})
	require.NoError(t, err)

	tier, ok := s.auth.Validate(rawKey)
	require.True(t, ok)
	require.Equal(t, domain.TierElite, tier)
}

func TestSubscriptionUpdatedChangesTier(t *testing.T) {
	s := newTestService(t)

	rawKey, err := s.HandleWebhook("customer.subscription.created", SubscriptionEvent{ID: "sub_1", MetadataTier: "free"})
	require.NoError(t, err)

	_, err = s.HandleWebhook("customer.subscription.updated", SubscriptionEvent{ID: "sub_1", MetadataTier: "elite", Status: "active"})
	require.NoError(t, err)

	tier, ok := s.auth.Validate(rawKey)
	require.True(t, ok)
	require.Equal(t, domain.TierElite, tier)
}

func TestSubscriptionDeletedDeactivatesKey(t *testing.T) {
	s := newTestService(t)

	rawKey, err := s.HandleWebhook("customer.subscription.created", SubscriptionEvent{ID: "sub_1", MetadataTier: "pro"})
	require.NoError(t, err)

	_, err = s.HandleWebhook("customer.subscription.deleted", SubscriptionEvent{ID: "sub_1"})
	require.NoError(t, err)

	_, ok := s.auth.Validate(rawKey)
	require.False(t, ok)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	s := newTestService(t)
	rawKey, err := s.HandleWebhook("customer.created", SubscriptionEvent{ID: "sub_1"})
	require.NoError(t, err)
	require.Empty(t, rawKey)
}

func TestUpdatedWithUnknownSubscriptionIsNoOp(t *testing.T) {
	s := newTestService(t)
	rawKey, err := s.HandleWebhook("customer.subscription.updated", SubscriptionEvent{ID: "nonexistent"})
	require.NoError(t, err)
	require.Empty(t, rawKey)
}

func TestFakeCheckoutCreatesActiveSubscription(t *testing.T) {
	s := newTestService(t)

	rawKey, subID, err := s.FakeCheckout(domain.TierPro, "trader@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)
	require.Contains(t, subID, "fake_sub_")

	tier, ok := s.auth.Validate(rawKey)
	require.True(t, ok)
	require.Equal(t, domain.TierPro, tier)

	counts, err := s.ActiveSubscriptionCounts()
	require.NoError(t, err)
	require.Equal(t, 1, counts[domain.TierPro])
}

func TestActiveSubscriptionCountsExcludesCancelled(t *testing.T) {
	s := newTestService(t)

	_, err := s.HandleWebhook("customer.subscription.created", SubscriptionEvent{ID: "sub_1", MetadataTier: "pro"})
	require.NoError(t, err)
	_, err = s.HandleWebhook("customer.subscription.created", SubscriptionEvent{ID: "sub_2", MetadataTier: "pro"})
	require.NoError(t, err)
	_, err = s.HandleWebhook("customer.subscription.deleted", SubscriptionEvent{ID: "sub_2"})
	require.NoError(t, err)

	counts, err := s.ActiveSubscriptionCounts()
	require.NoError(t, err)
	require.Equal(t, 1, counts[domain.TierPro])
}
