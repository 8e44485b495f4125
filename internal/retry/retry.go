// Package retry implements the UDP retry controller of spec.md §4.5: it
// drives one request to a response or a terminal failure, retransmitting
// on a protocol-specific schedule until a matching datagram arrives, the
// deadline passes, or the context is cancelled.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/HD-CIPL/portmapper/internal/logging"
	"github.com/HD-CIPL/portmapper/mapper"
)

var logger = logging.New("portmapper/retry")

// SendFunc transmits payload to the destination this Controller was built
// for. A non-nil error is treated as a terminal NetworkFailure.
type SendFunc func(ctx context.Context, payload []byte) error

// MatchFunc reports whether a received datagram answers the outstanding
// request, per spec §4.5's Matching rules (nonce equality for PCP MAP/PEER,
// the ANNOUNCE opcode with the response bit set for PCP ANNOUNCE, where
// the client IP is not compared, bit-stripped opcode equality for
// NAT-PMP).
type MatchFunc func(datagram []byte) bool

// Controller drives a single request/response exchange over an unreliable
// datagram transport.
type Controller struct {
	Send    SendFunc
	Recv    <-chan []byte
	Match   MatchFunc
	Backoff backoff.BackOff
}

// Run transmits payload immediately, then retransmits it on each tick of
// c.Backoff until a datagram satisfying c.Match arrives on c.Recv, the
// schedule is exhausted (backoff.Stop), or ctx is cancelled. Non-matching
// datagrams are discarded and logged, never treated as an error.
func (c *Controller) Run(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.Send(ctx, payload); err != nil {
		return nil, mapper.NetworkFail(err, "retry: initial send failed")
	}

	timer := time.NewTimer(c.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, mapper.Cancel(ctx.Err())

		case datagram, ok := <-c.Recv:
			if !ok {
				return nil, mapper.NetworkFail(nil, "retry: receive channel closed")
			}
			if !c.Match(datagram) {
				logger.Debugf("discarding non-matching datagram (%d bytes)", len(datagram))
				continue
			}
			return datagram, nil

		case <-timer.C:
			d := c.nextInterval()
			if d < 0 {
				return nil, mapper.TimedOut("retry: retransmission schedule exhausted")
			}
			logger.Debugf("retransmitting after no response, next interval %s", d)
			if err := c.Send(ctx, payload); err != nil {
				return nil, mapper.NetworkFail(err, "retry: retransmit failed")
			}
			timer.Reset(d)
		}
	}
}

// nextInterval returns the next retransmission interval, or a negative
// duration once c.Backoff reports the schedule is exhausted
// (backoff.Stop).
func (c *Controller) nextInterval() time.Duration {
	d := c.Backoff.NextBackOff()
	if d == backoff.Stop {
		return -1
	}
	return d
}
