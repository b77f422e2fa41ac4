package admission

import (
	"sync/atomic"

	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
)

// Unlimited accepts every claim. It keeps a lock-free count so capacity can still be observed
// when admission control is switched off.
type Unlimited struct {
	current atomic.Int64
	metrics *metrics.AdmissionMetrics
}

// NewUnlimited creates an admitter that never rejects. m may be nil.
func NewUnlimited(m *metrics.AdmissionMetrics) *Unlimited {
	return &Unlimited{metrics: m}
}

// Claim always succeeds.
func (u *Unlimited) Claim(string) (bool, Reason) {
	n := u.current.Add(1)
	if u.metrics != nil {
		u.metrics.Claims.Inc()
		u.metrics.ActiveClaims.Set(float64(n))
	}
	return true, ""
}

// Release releases a claim, never going below zero.
func (u *Unlimited) Release(string) {
	for {
		cur := u.current.Load()
		if cur <= 0 {
			return
		}
		if u.current.CompareAndSwap(cur, cur-1) {
			if u.metrics != nil {
				u.metrics.ActiveClaims.Set(float64(cur - 1))
			}
			return
		}
	}
}

// Total returns the number of claims currently held.
func (u *Unlimited) Total() int {
	return int(u.current.Load())
}
