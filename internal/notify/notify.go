// Package notify turns schedule change sets into per-recipient messages with
// send-side deduplication.
package notify

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/render"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/internal/storage"
	"github.com/DmitryBurnaev/tg-housing/internal/transport"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

// DedupLog is the subset of the store the notifier needs. A notification is
// sent at most once per (address, service, fingerprint, chat).
type DedupLog interface {
	WasNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) (bool, error)
	MarkNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) error
}

// Policy tunes what a change set produces.
type Policy struct {
	// NotifyCancelled also announces intervals that disappeared from the
	// provider page.
	NotifyCancelled bool
}

// Outcome summarizes one dispatch.
type Outcome struct {
	Sent    int
	Skipped int
	Failed  int

	// Failures holds the errors behind Failed. A cutoff (cancelled context,
	// limiter error) contributes one error covering every remaining recipient.
	Failures []error
}

type Notifier struct {
	adapter  transport.Adapter
	dedup    DedupLog
	renderer *render.Renderer
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(adapter transport.Adapter, dedup DedupLog, renderer *render.Renderer, limiter *rate.Limiter, log logx.Logger) *Notifier {
	if limiter == nil {
		// Telegram allows ~30 messages per second for a bot overall.
		limiter = rate.NewLimiter(rate.Limit(20), 5)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{adapter: adapter, dedup: dedup, renderer: renderer, limiter: limiter, log: log}
}

// cancelledSuffix separates "interval appeared" from "interval disappeared"
// in the dedup log so a cancellation of an announced outage still goes out.
const cancelledSuffix = "|cancelled"

// Dispatch sends the change set to every recipient. The first snapshot for a
// pair establishes the baseline and is never announced. A failure for one
// recipient or interval does not block the rest.
func (n *Notifier) Dispatch(ctx context.Context, addr address.Address, changes schedule.ChangeSet, recipients []storage.Recipient, policy Policy) (Outcome, error) {
	var out Outcome
	if changes.Baseline {
		out.Skipped += len(changes.Added) * len(recipients)
		return out, nil
	}

	for _, iv := range changes.Added {
		n.fanOut(ctx, &out, addr, iv, iv.Fingerprint(), false, recipients)
	}
	if policy.NotifyCancelled {
		for _, iv := range changes.Removed {
			n.fanOut(ctx, &out, addr, iv, iv.Fingerprint()+cancelledSuffix, true, recipients)
		}
	}

	if out.Failed > 0 {
		return out, errors.Join(out.Failures...)
	}
	return out, nil
}

func (n *Notifier) fanOut(ctx context.Context, out *Outcome, addr address.Address, iv schedule.Interval, fingerprint string, cancelled bool, recipients []storage.Recipient) {
	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			abort(out, err, len(recipients)-i)
			return
		}

		seen, err := n.dedup.WasNotified(ctx, addr.ID, iv.Kind, fingerprint, r.ChatID)
		if err != nil {
			out.Failed++
			out.Failures = append(out.Failures, err)
			continue
		}
		if seen {
			out.Skipped++
			continue
		}

		if err := n.limiter.Wait(ctx); err != nil {
			abort(out, err, len(recipients)-i)
			return
		}

		text := n.renderer.Outage(r.Locale, addr, iv, cancelled)
		if _, err := n.adapter.SendText(ctx, transport.ChatTarget{ChatID: r.ChatID}, text, nil); err != nil {
			n.log.Warn("send failed",
				logx.Int64("chat_id", r.ChatID),
				logx.String("service", string(iv.Kind)),
				logx.Err(err))
			out.Failed++
			out.Failures = append(out.Failures, err)
			continue
		}

		// Mark only after a confirmed send; a missed mark means at most one
		// duplicate message later, never a lost one.
		if err := n.dedup.MarkNotified(ctx, addr.ID, iv.Kind, fingerprint, r.ChatID); err != nil {
			n.log.Warn("dedup mark failed", logx.Int64("chat_id", r.ChatID), logx.Err(err))
		}
		out.Sent++
	}
}

// abort charges a fan-out cutoff against every recipient not yet attempted so
// sent+skipped+failed still adds up to the recipient count per interval.
func abort(out *Outcome, err error, remaining int) {
	out.Failed += remaining
	out.Failures = append(out.Failures, err)
}
