package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Retry calls fn until it succeeds or ctx ends, sleeping delay between
// attempts. It returns the last error when ctx ends first.
func Retry(ctx context.Context, delay time.Duration, log *logrus.Entry, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Wrapf(err, "gave up after %d attempts", attempt)
		}
		log.WithError(err).WithField("attempt", attempt).Warnf("retrying in %s", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrapf(err, "gave up after %d attempts", attempt)
		case <-t.C:
		}
	}
}
