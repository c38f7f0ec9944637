package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	service "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type countingRunner struct {
	runs chan struct{}
}

func (r *countingRunner) Run(ctx context.Context) (types.RecalculationSummary, error) {
	r.runs <- struct{}{}
	return types.RecalculationSummary{RunID: "run"}, nil
}

func waitRun(runs <-chan struct{}) bool {
	select {
	case <-runs:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler with a fake clock", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clock := clockwork.NewFakeClockAt(now)
		runner := &countingRunner{runs: make(chan struct{}, 4)}

		Convey("When it runs on start and every hour", func() {
			s := service.NewScheduler(runner, time.Hour,
				service.WithSchedulerClock(clock),
				service.WithRunOnStart(true),
			)
			s.Start(ctx)
			defer s.Stop()

			Convey("Then it should run immediately and again after each interval", func() {
				So(waitRun(runner.runs), ShouldBeTrue)

				So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
				clock.Advance(time.Hour)
				So(waitRun(runner.runs), ShouldBeTrue)

				clock.Advance(time.Hour)
				So(waitRun(runner.runs), ShouldBeTrue)
			})
		})

		Convey("When the interval is zero and start runs are disabled", func() {
			s := service.NewScheduler(runner, 0, service.WithSchedulerClock(clock))
			s.Start(ctx)
			s.Stop()

			Convey("Then it should never run", func() {
				So(runner.runs, ShouldBeEmpty)
			})
		})

		Convey("When it is stopped before the first tick", func() {
			s := service.NewScheduler(runner, time.Hour, service.WithSchedulerClock(clock))
			s.Start(ctx)
			So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
			s.Stop()
			clock.Advance(2 * time.Hour)

			Convey("Then no run should happen", func() {
				So(runner.runs, ShouldBeEmpty)
			})
		})
	})
}
