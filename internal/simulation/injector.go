// Package simulation injects controlled failures into the demo endpoints so
// the detection pipeline can be exercised against known-bad traffic.
package simulation

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Settings is the per-endpoint failure configuration.
type Settings struct {
	DelayMS   int     `json:"delay_ms,omitempty"`
	ErrorRate float64 `json:"error_rate,omitempty"`
}

// SimulatedFailure distinguishes injected failures from real bugs. Callers
// can pick it out with errors.As.
type SimulatedFailure struct {
	Reason string
}

func (e *SimulatedFailure) Error() string {
	return "Simulated failure: " + e.Reason
}

var failureReasons = []string{
	"Database connection timeout",
	"Downstream service unavailable",
	"Out of memory error",
	"Circuit breaker open",
	"Rate limit exceeded",
}

// Injector holds failure settings per endpoint and applies them on demand.
// Safe for concurrent use by request handlers and the simulate API.
type Injector struct {
	mu     sync.RWMutex
	config map[string]*Settings
	rand   *rand.Rand
}

func NewInjector() *Injector {
	return &Injector{
		config: make(map[string]*Settings),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetDelay adds artificial latency to every request on an endpoint.
func (i *Injector) SetDelay(endpoint string, delayMS int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settingsLocked(endpoint).DelayMS = delayMS
}

// SetErrorRate makes an endpoint fail randomly with the given probability.
// The rate is clamped to [0, 1].
func (i *Injector) SetErrorRate(endpoint string, rate float64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settingsLocked(endpoint).ErrorRate = min(max(rate, 0), 1)
}

// ClearEndpoint removes all simulations for one endpoint.
func (i *Injector) ClearEndpoint(endpoint string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.config, endpoint)
}

// ClearAll removes every simulation.
func (i *Injector) ClearAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config = make(map[string]*Settings)
}

// Config returns a copy of the current simulation table.
func (i *Injector) Config() map[string]Settings {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[string]Settings, len(i.config))
	for endpoint, s := range i.config {
		out[endpoint] = *s
	}
	return out
}

// Inject applies the configured failures for an endpoint: first the delay,
// then the error roll. Handlers call it before doing real work.
func (i *Injector) Inject(ctx context.Context, endpoint string) error {
	i.mu.RLock()
	s, ok := i.config[endpoint]
	var snapshot Settings
	if ok {
		snapshot = *s
	}
	i.mu.RUnlock()

	if !ok {
		return nil
	}

	if snapshot.DelayMS > 0 {
		if err := sleepCtx(ctx, time.Duration(snapshot.DelayMS)*time.Millisecond); err != nil {
			return err
		}
	}

	if snapshot.ErrorRate > 0 && i.roll() < snapshot.ErrorRate {
		return &SimulatedFailure{Reason: i.pickReason()}
	}
	return nil
}

func (i *Injector) settingsLocked(endpoint string) *Settings {
	s, ok := i.config[endpoint]
	if !ok {
		s = &Settings{}
		i.config[endpoint] = s
	}
	return s
}

func (i *Injector) roll() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rand.Float64()
}

func (i *Injector) pickReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return failureReasons[i.rand.Intn(len(failureReasons))]
}

// sleepCtx waits for d unless the request is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
