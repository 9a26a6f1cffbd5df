package checkout

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/domain/payment"
)

// StatusFunc fetches the current provider-side status of a payment.
type StatusFunc func(ctx context.Context) (payment.Status, error)

// Poller drives a WAITING_PAYMENT payment to a terminal status. It runs two
// independent tickers: the status poll and a one-second display countdown
// toward the PIX expiry. The countdown is advisory only; reaching zero never
// transitions the payment, only a poll observing EXPIRED does.
//
// Run returns when a terminal status is observed or the context is
// cancelled, and both tickers stop with it. Poll errors are logged and the
// loop keeps going; each retry is the next scheduled tick, never a tight
// loop.
type Poller struct {
	Fetch     StatusFunc
	Interval  time.Duration
	Tick      time.Duration
	ExpiresAt *time.Time

	// OnStatus is invoked for every observed status change, terminal ones
	// included. OnCountdown is invoked on every countdown tick with the
	// remaining display time. Both may be nil.
	OnStatus    func(payment.Status)
	OnCountdown func(time.Duration)
}

// Run blocks until the payment is terminal or ctx is done.
func (p *Poller) Run(ctx context.Context) {
	lg := zctx.From(ctx)

	poll := time.NewTicker(p.Interval)
	defer poll.Stop()

	var countdown <-chan time.Time
	if p.ExpiresAt != nil {
		t := time.NewTicker(p.Tick)
		defer t.Stop()
		countdown = t.C
		p.notifyCountdown(time.Now())
	}

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-countdown:
			p.notifyCountdown(now)

		case <-poll.C:
			status, err := p.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					// Late response for a torn-down session; drop it.
					return
				}
				lg.Warn("payment status poll failed", zap.Error(err))
				continue
			}
			if p.OnStatus != nil {
				p.OnStatus(status)
			}
			if status.Terminal() {
				return
			}
		}
	}
}

func (p *Poller) notifyCountdown(now time.Time) {
	if p.OnCountdown == nil {
		return
	}
	left := p.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	p.OnCountdown(left)
}
