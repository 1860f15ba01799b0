package health

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldownDuration = 1 * time.Hour
)

// Service tracks provider health across capabilities. Providers that fail
// their startup probe or accumulate failures are excluded from routing until
// a periodic re-probe brings them back.
type Service struct {
	mu               sync.RWMutex
	entries          map[string]*ProviderHealth // key: "capability:provider"
	probes           map[Capability]ProbeFunc
	failureThreshold int
	cooldownDuration time.Duration
}

// NewService creates a new health service
func NewService(failureThreshold int, cooldownDuration time.Duration) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldownDuration <= 0 {
		cooldownDuration = defaultCooldownDuration
	}

	return &Service{
		entries:          make(map[string]*ProviderHealth),
		probes:           make(map[Capability]ProbeFunc),
		failureThreshold: failureThreshold,
		cooldownDuration: cooldownDuration,
	}
}

func entryKey(capability Capability, provider string) string {
	return fmt.Sprintf("%s:%s", capability, provider)
}

// RegisterProbe registers the active check used to re-probe providers of a capability
func (s *Service) RegisterProbe(capability Capability, probe ProbeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[capability] = probe
}

// Register adds a provider to the health cache for a given capability
func (s *Service) Register(capability Capability, provider string, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(capability, provider)
	if _, exists := s.entries[key]; !exists {
		s.entries[key] = &ProviderHealth{
			Provider:   provider,
			Capability: capability,
			Status:     StatusUnknown,
			Priority:   priority,
		}
		log.Printf("[HEALTH] Registered %s provider %s priority=%d", capability, provider, priority)
	}
}

// Available returns provider names for a capability ordered by priority,
// filtering out unhealthy and cooling-down entries. Unknown counts as
// available so a freshly registered provider can take traffic before its
// first probe completes.
func (s *Service) Available(capability Capability) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var available []*ProviderHealth

	for _, h := range s.entries {
		if h.Capability != capability {
			continue
		}
		switch h.Status {
		case StatusUnhealthy:
			continue
		case StatusCooldown:
			if now.After(h.CooldownUntil) {
				available = append(available, h)
			}
		default:
			available = append(available, h)
		}
	}

	sort.Slice(available, func(i, j int) bool {
		if available[i].Priority != available[j].Priority {
			return available[i].Priority > available[j].Priority
		}
		return available[i].Provider < available[j].Provider
	})

	names := make([]string, len(available))
	for i, h := range available {
		names[i] = h.Provider
	}
	return names
}

// IsAvailable checks whether a single provider can take traffic for a capability
func (s *Service) IsAvailable(capability Capability, provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.entries[entryKey(capability, provider)]
	if !exists {
		return true // unregistered providers are assumed fine
	}

	switch h.Status {
	case StatusUnhealthy:
		return false
	case StatusCooldown:
		return time.Now().After(h.CooldownUntil)
	default:
		return true
	}
}

// MarkHealthy marks a provider healthy after a successful request
func (s *Service) MarkHealthy(capability Capability, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.entries[entryKey(capability, provider)]
	if !exists {
		return
	}

	wasDown := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = time.Now()
	h.LastChecked = time.Now()
	h.CooldownUntil = time.Time{}

	if wasDown {
		log.Printf("[HEALTH] %s provider %s recovered - now healthy", capability, provider)
	}
}

// MarkUnhealthy records a failure. After reaching the threshold the provider
// is excluded from routing.
func (s *Service) MarkUnhealthy(capability Capability, provider string, errMsg string, httpCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.entries[entryKey(capability, provider)]
	if !exists {
		return
	}

	h.FailureCount++
	h.LastError = errMsg
	h.LastChecked = time.Now()

	if h.FailureCount >= s.failureThreshold {
		h.Status = StatusUnhealthy
		log.Printf("[HEALTH] %s provider %s marked UNHEALTHY after %d failures: %s",
			capability, provider, h.FailureCount, truncateStr(errMsg, 200))
	} else {
		log.Printf("[HEALTH] %s provider %s failure %d/%d: %s",
			capability, provider, h.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
	}
}

// SetCooldown puts a provider into cooldown (typically after a quota error)
func (s *Service) SetCooldown(capability Capability, provider string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.entries[entryKey(capability, provider)]
	if !exists {
		return
	}

	h.Status = StatusCooldown
	h.CooldownUntil = time.Now().Add(duration)
	h.LastChecked = time.Now()

	log.Printf("[HEALTH] %s provider %s in COOLDOWN until %s",
		capability, provider, h.CooldownUntil.Format(time.RFC3339))
}

// CheckProvider runs the registered probe for one provider and updates its
// health entry. Quota errors become cooldowns, other errors count toward the
// failure threshold.
func (s *Service) CheckProvider(capability Capability, provider string) error {
	s.mu.RLock()
	probe, hasProbe := s.probes[capability]
	_, exists := s.entries[entryKey(capability, provider)]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("provider not registered: %s:%s", capability, provider)
	}
	if !hasProbe {
		return nil
	}

	if err := probe(provider); err != nil {
		if IsQuotaError(0, err.Error()) {
			s.SetCooldown(capability, provider, ParseCooldownDuration(0, err.Error()))
		} else {
			s.MarkUnhealthy(capability, provider, err.Error(), 0)
		}
		return err
	}

	s.MarkHealthy(capability, provider)
	return nil
}

// All returns every registered entry (snapshot copies)
func (s *Service) All() []ProviderHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ProviderHealth, 0, len(s.entries))
	for _, h := range s.entries {
		result = append(result, *h)
	}
	return result
}

// Summary returns health counts per capability for the status endpoint
func (s *Service) Summary() map[string]map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	summary := make(map[string]map[string]int)

	for _, h := range s.entries {
		capName := string(h.Capability)
		if summary[capName] == nil {
			summary[capName] = map[string]int{"healthy": 0, "unhealthy": 0, "cooldown": 0, "unknown": 0}
		}

		switch h.Status {
		case StatusHealthy:
			summary[capName]["healthy"]++
		case StatusUnhealthy:
			summary[capName]["unhealthy"]++
		case StatusCooldown:
			if now.After(h.CooldownUntil) {
				summary[capName]["unknown"]++
			} else {
				summary[capName]["cooldown"]++
			}
		default:
			summary[capName]["unknown"]++
		}
	}

	return summary
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
