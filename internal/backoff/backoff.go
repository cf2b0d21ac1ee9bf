// Package backoff implements the jittered exponential delay shared by the RPC Client
// Fabric's retry loop and the Webhook Fan-out's single-retry send (spec §4.1, §4.9):
// delay(attempt) = min(timeout, base*2^attempt + U(0, jitterMax)).
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Delay computes the jittered exponential backoff for the given attempt number.
func Delay(attempt int, base, jitterMax, timeout float64) time.Duration {
	d := base*math.Pow(2, float64(attempt)) + rand.Float64()*jitterMax
	if d > timeout {
		d = timeout
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d * float64(time.Second))
}
