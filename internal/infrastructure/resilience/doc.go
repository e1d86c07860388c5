/*
Package resilience provides the circuit breaker guarding translation calls.

# Overview

When the completion endpoint keeps failing, the breaker opens and further
requests fail immediately with ErrCircuitOpen instead of waiting out the
HTTP timeout and retries on every prompt.

Context cancellation does not count as a failure: a user pressing Ctrl-C
during translation should not trip the breaker.

# Usage

	breaker := resilience.New("translator", resilience.Policy{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnTransition: func(name string, from, to resilience.State) {
			log.Info("breaker state change", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	command, err := resilience.Do(breaker, func() (string, error) {
		return client.complete(ctx, messages)
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[Probes pass]-> Closed
	                                                        |
	                                                    [failure]
	                                                        v
	                                                      Open
*/
package resilience
