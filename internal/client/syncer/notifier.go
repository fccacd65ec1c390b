package syncer

import "context"

// Notifier shows outcomes of user-visible sync work. Background pushes only
// report through the log.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Failure(ctx context.Context, msg string, err error)
}

type nopNotifier struct{}

func (nopNotifier) Success(context.Context, string)        {}
func (nopNotifier) Failure(context.Context, string, error) {}
