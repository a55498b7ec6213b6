package broker

import (
	"math/rand"
	"time"
)

// backoffBase and backoffCap bound the reconnect delay for outbound
// ("connect") peers that lose their link.
const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 60 * time.Second
	backoffJitter = 0.20
)

// nextBackoff doubles attempt-th delay from backoffBase, capped at
// backoffCap, with ±20% jitter.
func nextBackoff(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}
