/*
Package resilience guards calls to the mini-app platform with a circuit
breaker.

A closed breaker passes calls and counts their outcomes. When ReadyToTrip
approves after a failure the breaker opens and rejects calls with
ErrCircuitOpen until Timeout has passed. It then lets MaxRequests trial calls
through half-open: enough consecutive successes close it, any failure opens
it again.

	Closed --[trip]--> Open --[timeout]--> Half-Open --[successes]--> Closed
	                     ^                     |
	                     +------[failure]------+

Each transition, and each Interval while closed, starts a new generation
with zeroed counts. A call that finishes after its generation ended is not
counted.

IsSuccessful decides what a failure is. The platform client counts 4xx
responses and caller cancellation as successes so a missing mini-app or an
impatient renderer never trips the breaker:

	b := resilience.New("platform", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		IsSuccessful: func(err error) bool {
			var status *platform.StatusError
			if errors.As(err, &status) {
				return status.Code < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	info, err := resilience.Execute(ctx, b, func(ctx context.Context) (*types.Info, error) {
		return fetchInfo(ctx, appID)
	})

Snapshot reports the state for the health endpoint and the breaker gauge.
*/
package resilience
