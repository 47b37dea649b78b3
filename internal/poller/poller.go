// Package poller waits for a remotely executed long-running task to finish
// by querying its status on a fixed interval with a bounded attempt budget.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
)

// State is the coarse outcome of a single status query.
type State int

const (
	Pending State = iota
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is what the remote side reported for one query.
type Result struct {
	State     State
	OutputRef string // set when State is Done
	Detail    string // provider status text, used in error messages
}

var (
	// ErrTaskFailed means the remote task reported a permanent failure.
	ErrTaskFailed = errors.New("task failed")
	// ErrTaskTimeout means the attempt budget ran out before the task finished.
	ErrTaskTimeout = errors.New("task timed out")
)

// QueryFunc asks the remote side for the status of ref. An error is treated
// as transient and costs one attempt.
type QueryFunc func(ctx context.Context, ref string) (Result, error)

// Options bounds the polling loop.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	// OnAttempt, if set, is called after every query.
	OnAttempt func(attempt int, res Result, err error)
}

// DefaultOptions matches the lip-sync provider's observed completion times:
// 60 attempts ten seconds apart.
func DefaultOptions() Options {
	return Options{MaxAttempts: common.DefaultPollAttempts, Interval: 10 * time.Second}
}

// Await queries ref until it is done, permanently failed, or opts.MaxAttempts
// queries have been made. It returns the output reference on success.
//
// A Done result without an output reference counts as pending. When the last
// attempt fails with a query error, the returned error wraps both
// ErrTaskTimeout and that query error.
func Await(ctx context.Context, ref string, query QueryFunc, opts Options) (string, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		res, err := query(ctx, ref)
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, res, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if attempt == opts.MaxAttempts {
				return "", fmt.Errorf("%w after %d attempts: %w", ErrTaskTimeout, attempt, err)
			}
		} else {
			switch res.State {
			case Done:
				if res.OutputRef != "" {
					return res.OutputRef, nil
				}
			case Failed:
				if res.Detail != "" {
					return "", fmt.Errorf("%w: %s", ErrTaskFailed, res.Detail)
				}
				return "", ErrTaskFailed
			}
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrTaskTimeout, opts.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
