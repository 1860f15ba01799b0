package health

import "time"

// Capability identifies what kind of provider interaction a health entry covers
type Capability string

const (
	CapabilityChat   Capability = "chat"
	CapabilityCoding Capability = "coding"
)

// Status represents the health state of a provider
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusCooldown  Status = "cooldown"
	StatusUnknown   Status = "unknown"
)

// ProviderHealth tracks the health of a single provider+capability combination
type ProviderHealth struct {
	Provider      string
	Capability    Capability
	Status        Status
	LastChecked   time.Time
	LastSuccessAt time.Time
	FailureCount  int
	LastError     string
	CooldownUntil time.Time
	Priority      int // higher = preferred
}

// ProbeFunc performs a lightweight check of one registered provider.
// It returns an error when the provider is unreachable or rejecting requests.
type ProbeFunc func(provider string) error
