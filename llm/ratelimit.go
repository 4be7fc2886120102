package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps call so that it waits on limiter before every
// invocation, bounding the rate at which a nucleus's bounded tool-call loop
// (spec §4.2) can hit a provider. Grounded on the common Go idiom of
// wrapping an outbound call with golang.org/x/time/rate.Limiter.Wait.
func RateLimited(call Call, limiter *rate.Limiter) Call {
	return func(ctx context.Context, prompt string, tools []ToolSpec, cfg Config) (Result, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}
		return call(ctx, prompt, tools, cfg)
	}
}
