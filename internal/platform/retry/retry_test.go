package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/trendscore/internal/platform/retry"
	. "github.com/smartystreets/goconvey/convey"
)

var immediate = retry.Policy{MaxAttempts: retry.DefaultMaxAttempts}

func alwaysStop(error) retry.Action { return retry.Stop }

func doErr(ctx context.Context, p retry.Policy, classify retry.Classify, op func(context.Context) error) error {
	_, err := retry.Do(ctx, p, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func TestDo(t *testing.T) {
	Convey("Given a two-attempt policy", t, func() {
		ctx := context.Background()

		Convey("When the first attempt succeeds", func() {
			calls := 0
			val, err := retry.Do(ctx, immediate, retry.Transient, func(context.Context) (int, error) {
				calls++
				return 42, nil
			})

			So(err, ShouldBeNil)
			So(val, ShouldEqual, 42)
			So(calls, ShouldEqual, 1)
		})

		Convey("When the first attempt fails transiently", func() {
			calls := 0
			var retried []int
			p := immediate
			p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

			val, err := retry.Do(ctx, p, retry.Transient, func(context.Context) (string, error) {
				calls++
				if calls == 1 {
					return "", errors.New("transient")
				}
				return "ok", nil
			})

			Convey("Then the single retry should recover", func() {
				So(err, ShouldBeNil)
				So(val, ShouldEqual, "ok")
				So(calls, ShouldEqual, 2)
				So(retried, ShouldResemble, []int{1})
			})
		})

		Convey("When every attempt fails", func() {
			boom := errors.New("boom")
			calls := 0
			err := doErr(ctx, immediate, nil, func(context.Context) error {
				calls++
				return boom
			})

			Convey("Then the budget should be exhausted and the cause kept", func() {
				So(calls, ShouldEqual, 2)
				So(errors.Is(err, boom), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "failed after 2 attempts")
			})
		})

		Convey("When the error is permanent", func() {
			permanent := errors.New("permanent")
			calls := 0
			err := doErr(ctx, immediate, alwaysStop, func(context.Context) error {
				calls++
				return permanent
			})

			var permErr *retry.PermanentError
			So(errors.As(err, &permErr), ShouldBeTrue)
			So(errors.Is(err, permanent), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})

		Convey("When an attempt outlives its timeout", func() {
			p := retry.Policy{MaxAttempts: 1, AttemptTimeout: 5 * time.Millisecond}
			err := doErr(ctx, p, nil, func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})

			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("When the caller cancels during backoff", func() {
			clock := clockwork.NewFakeClock()
			p := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Hour, Clock: clock}
			cctx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() {
				done <- doErr(cctx, p, nil, func(context.Context) error {
					return errors.New("transient")
				})
			}()

			So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
			cancel()
			err := <-done

			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("When the backoff elapses on the clock", func() {
			clock := clockwork.NewFakeClock()
			p := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Second, Clock: clock}
			calls := 0

			done := make(chan error, 1)
			go func() {
				done <- doErr(ctx, p, nil, func(context.Context) error {
					calls++
					if calls == 1 {
						return errors.New("transient")
					}
					return nil
				})
			}()

			So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
			clock.Advance(time.Second)

			So(<-done, ShouldBeNil)
			So(calls, ShouldEqual, 2)
		})
	})
}
