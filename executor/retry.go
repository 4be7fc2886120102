package executor

import (
	"math/rand"

	"github.com/acmrt/acm/model"
)

// backoffDelayMs computes the delay before retry attempt (1-indexed) per
// spec §4.1 step 6: fixed(baseMs) or exp(baseMs * 2^(attempt-1)), with
// optional full jitter uniform(0, delay).
func backoffDelayMs(policy model.RetryPolicy, attempt int) int {
	var delay int
	switch policy.Backoff {
	case model.BackoffExp:
		delay = policy.BaseMs << uint(attempt-1)
	default:
		delay = policy.BaseMs
	}
	if policy.Jitter && delay > 0 {
		delay = rand.Intn(delay + 1)
	}
	return delay
}
