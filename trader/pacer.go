package trader

import (
	"context"
	"time"
)

// pacer spaces the n-th request at least n*spacing after the cycle start.
type pacer struct {
	start   time.Time
	spacing time.Duration
	n       int
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

func (p *pacer) wait(ctx context.Context) error {
	target := p.start.Add(time.Duration(p.n) * p.spacing)
	p.n++
	if d := target.Sub(p.now()); d > 0 {
		return p.sleep(ctx, d)
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
