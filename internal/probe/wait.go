package probe

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WaitOptions bounds WaitUntilReady. Both MaxAttempts and MaxWait apply;
// whichever is reached first ends the wait.
type WaitOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxWait      time.Duration
	CheckTimeout time.Duration
	Observer     Observer
}

// WaitReport summarizes a finished wait.
type WaitReport struct {
	URL      string
	Attempts int
	Elapsed  time.Duration
	Ready    bool
	Last     Kind
}

// Observer is notified once per WaitUntilReady call.
type Observer interface {
	ObserveWait(WaitReport)
}

// DefaultWaitOptions is a cold-start wait.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		MaxAttempts:  60,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxWait:      60 * time.Second,
		CheckTimeout: DefaultTimeout,
	}
}

func (o WaitOptions) withDefaults() WaitOptions {
	d := DefaultWaitOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.MaxWait <= 0 {
		o.MaxWait = d.MaxWait
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = d.CheckTimeout
	}
	return o
}

// WaitUntilReady polls rawURL with exponential backoff until it is ready,
// MaxAttempts checks have failed, MaxWait has elapsed since the call began,
// or ctx is done. Every check and every sleep is clipped to the remaining
// budget, so the call never outlives MaxWait by more than scheduling noise.
func (p *Prober) WaitUntilReady(ctx context.Context, rawURL string, opts WaitOptions) bool {
	opts = opts.withDefaults()

	start := time.Now()
	deadline := start.Add(opts.MaxWait)
	delay := opts.InitialDelay

	report := WaitReport{URL: rawURL, Last: KindRefused}
	finish := func(ready bool) bool {
		report.Ready = ready
		report.Elapsed = time.Since(start)
		if opts.Observer != nil {
			opts.Observer.ObserveWait(report)
		}
		return ready
	}

	for report.Attempts < opts.MaxAttempts {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		report.Attempts++
		res := p.Check(rawURL, min(opts.CheckTimeout, remaining))
		report.Last = res.Kind
		if res.Ready() {
			p.log.Info("server ready", logField(rawURL),
				zap.Int("attempts", report.Attempts),
				zap.Duration("elapsed", time.Since(start)))
			return finish(true)
		}

		p.log.Debug("waiting for server", logField(rawURL),
			zap.Int("attempt", report.Attempts),
			zap.Int("max_attempts", opts.MaxAttempts),
			zap.String("outcome", res.String()))

		remaining = time.Until(deadline)
		if remaining <= 0 || report.Attempts >= opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(min(delay, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(false)
		case <-timer.C:
		}

		delay = min(delay*2, opts.MaxDelay)
	}

	p.log.Warn("server not ready before deadline", logField(rawURL),
		zap.Int("attempts", report.Attempts),
		zap.Duration("max_wait", opts.MaxWait),
		zap.String("last", string(report.Last)))
	return finish(false)
}
