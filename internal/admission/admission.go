// Package admission decides whether a new streaming connection may be accepted.
//
// The controller applies a global cap plus two per-origin thresholds. The hard threshold is an
// absolute ceiling for one origin. The soft threshold only bites when the service is nearly full,
// so an address shared by many independent users (carrier-grade NAT) may burst while capacity is
// slack but cannot eat into the slots reserved for other origins.
package admission

import (
	"sync"

	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
)

// Reason describes why a connection was rejected.
type Reason string

const (
	ReasonGlobal        Reason = "global_limit"
	ReasonHardPerOrigin Reason = "hard_per_origin"
	ReasonSoftPerOrigin Reason = "soft_per_origin"
)

// Limits configures the controller.
type Limits struct {
	Global        int
	SoftPerOrigin int
	HardPerOrigin int
	Reserve       int
}

// Controller tracks the global and per-origin claim counts.
// Claim and Release are atomic with respect to each other.
type Controller struct {
	mu      sync.Mutex
	limits  Limits
	total   int
	origins map[string]int
	metrics *metrics.AdmissionMetrics
}

// New creates a controller. m may be nil.
func New(limits Limits, m *metrics.AdmissionMetrics) *Controller {
	return &Controller{
		limits:  limits,
		origins: make(map[string]int),
		metrics: m,
	}
}

// Claim attempts to take a slot for origin.
// Returns true and an empty reason if successful, false and the reason otherwise.
func (c *Controller) Claim(origin string) (bool, Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total >= c.limits.Global {
		return c.reject(ReasonGlobal)
	}

	n := c.origins[origin]
	if n >= c.limits.HardPerOrigin {
		return c.reject(ReasonHardPerOrigin)
	}

	free := c.limits.Global - c.total
	if n >= c.limits.SoftPerOrigin && free <= c.limits.Reserve {
		return c.reject(ReasonSoftPerOrigin)
	}

	c.origins[origin] = n + 1
	c.total++
	c.observe()
	if c.metrics != nil {
		c.metrics.Claims.Inc()
	}
	return true, ""
}

// Release returns a slot held by origin. Counters never go below zero and an origin without
// claims leaves no entry behind.
func (c *Controller) Release(origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.origins[origin]; n > 1 {
		c.origins[origin] = n - 1
	} else {
		delete(c.origins, origin)
	}
	if c.total > 0 {
		c.total--
	}
	c.observe()
}

// Total returns the number of claims currently held.
func (c *Controller) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Count returns the number of claims held by origin.
func (c *Controller) Count(origin string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origins[origin]
}

// Origins returns the number of distinct origins holding claims.
func (c *Controller) Origins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.origins)
}

// capacityPct must be called with mu held.
func (c *Controller) capacityPct() float64 {
	if c.limits.Global <= 0 {
		return 0
	}
	return float64(c.total) / float64(c.limits.Global) * 100
}

func (c *Controller) reject(reason Reason) (bool, Reason) {
	if c.metrics != nil {
		c.metrics.Rejections.WithLabelValues(string(reason)).Inc()
	}
	return false, reason
}

// observe must be called with mu held.
func (c *Controller) observe() {
	if c.metrics == nil {
		return
	}
	c.metrics.ActiveClaims.Set(float64(c.total))
	c.metrics.ActiveOrigins.Set(float64(len(c.origins)))
	c.metrics.CapacityUsed.Set(c.capacityPct())
}
