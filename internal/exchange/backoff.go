package exchange

import "time"

// Backoff returns the reconnect delay for the given 0-based attempt index:
// min(base * 2^attempt, cap). Deterministic so reconnect behaviour is
// testable without a live connection.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if cap < base {
		cap = base
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap || delay <= 0 {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
