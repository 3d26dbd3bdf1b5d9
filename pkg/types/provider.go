package types

// WebhookSource identifies the billing provider a webhook or migration
// request originated from. It is half of the idempotency key.
type WebhookSource string

const (
	WebhookSourcePaddle     WebhookSource = "paddle"
	WebhookSourceRevenueCat WebhookSource = "revenuecat"
)

type SubscriptionType string

const (
	SubscriptionTypeLifetime SubscriptionType = "lifetime"
	SubscriptionTypeAnnual   SubscriptionType = "annual"
)
