package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/hk"
	"github.com/dcperf/oldisim/statspipe"
)

// statsWindow is the per-reactor snapshot cadence the coordinator
// merges on (spec §4.7 "every W seconds"); 1s matches the monitor's
// finest /child_stats bucket.
const statsWindow = time.Second

// ctxFromStopCh adapts a cos.StopCh to a context.Context so it can be
// handed to reactor.Pool.Run, whose errgroup-based shutdown watches a
// context rather than a StopCh directly.
func ctxFromStopCh(stopCh *cos.StopCh) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stopCh.Listen()
		cancel()
	}()
	return ctx
}

// RunUntilSignal starts runner.Run on a goroutine, blocks for SIGINT
// (spec §6 "SIGINT triggers orderly break of all event loops"), ignores
// SIGPIPE (spec §6 "SIGPIPE is ignored" — ignoring it here rather than
// relying on Go's default disposition makes the intent explicit and
// matches the original's sigaction(SIGPIPE, SIG_IGN) call), stops
// runner, waits for Run to return, then prints the run's aggregate
// per-type stats to stdout (spec §6's report format) before returning
// runner's exit error.
func RunUntilSignal(runner cos.Runner, coord *statspipe.Coordinator) error {
	signal.Ignore(syscall.SIGPIPE)

	go hk.DefaultHK.Run()
	hk.WaitStarted()
	defer hk.DefaultHK.Stop(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run() }()

	<-sigCh
	nlog.Infof("%s: received SIGINT, shutting down", runner.Name())
	runner.Stop(nil)

	err := <-errCh
	PrintStats(coord)
	return err
}

// PrintStats renders the spec §6 "Stats for node under test" stdout
// block for every request type the coordinator has seen.
func PrintStats(coord *statspipe.Coordinator) {
	for _, s := range coord.LifetimeSummary() {
		fmt.Printf("Stats for node under test, type %d\n", s.Type)
		fmt.Printf("  RX: %.3f MB/s (%d)\n", s.RxMBps, s.RxBytes)
		fmt.Printf("  TX: %.3f MB/s (%d)\n", s.TxMBps, s.TxBytes)
		fmt.Printf("  #: %.1f QPS (%d)\n", s.QPS, s.Queries)
		fmt.Printf("  min / avg / 50p / 90p / 95p / 99p / 99.9p : %.3f / %.3f / %.3f / %.3f / %.3f / %.3f / %.3f ms\n",
			s.MinMs, s.AvgMs, s.P50Ms, s.P90Ms, s.P95Ms, s.P99Ms, s.P999Ms)
	}
}
