// Command gridmux-bench is a PTY/ANSI soak-test harness: it spawns N real
// shell-backed PTYs, each echoing ANSI-styled output at a configured rate,
// and measures the VT parser's per-chunk ingest latency and aggregate
// throughput. It is the terminal-engine analogue of the teacher's own
// cmd/amux-harness (which benchmarks render frames instead of parser
// ingest), reusing the same flag-driven percentile-summary shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/ptymgr"
	"github.com/andyrewlee/gridmux/internal/term"
)

// spawnConcurrency bounds how many pty.Start calls run at once, so a large
// -terminals count doesn't fork/exec a flood of shells simultaneously.
const spawnConcurrency = 8

type stats struct {
	avg, min, max, p50, p95, p99 time.Duration
}

func main() {
	terminals := flag.Int("terminals", 8, "number of concurrent PTY sessions")
	cols := flag.Int("cols", 120, "terminal width in columns")
	rows := flag.Int("rows", 40, "terminal height in rows")
	duration := flag.Duration("duration", 10*time.Second, "soak duration")
	warmup := flag.Duration("warmup", 500*time.Millisecond, "warmup period excluded from measurement")
	rateHz := flag.Int("rate-hz", 200, "output lines per second, per terminal")
	lineBytes := flag.Int("line-bytes", 80, "approximate ANSI-styled bytes per emitted line")
	flag.Parse()

	if *terminals <= 0 {
		fmt.Fprintln(os.Stderr, "gridmux-bench: terminals must be > 0")
		os.Exit(1)
	}

	manager := ptymgr.NewManager()
	profile := gridconfig.ShellProfile{
		Name: "bench",
		Path: emitterCommand(*rateHz, *lineBytes),
	}

	type worker struct {
		id      ptymgr.Id
		session *term.Session
		output  ptymgr.OutputSource
	}
	workers := make([]worker, *terminals)

	g, gctx := asyncutil.BoundedErrGroup(context.Background(), spawnConcurrency)
	for i := 0; i < *terminals; i++ {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			id, input, output, err := manager.Spawn(profile, "", nil, uint16(*cols), uint16(*rows))
			if err != nil {
				return fmt.Errorf("spawn terminal %d: %w", i, err)
			}
			workers[i] = worker{
				id:      id,
				session: term.NewSession(*cols, *rows, ptymgr.NewInputWriter(input)),
				output:  output,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "gridmux-bench: %v\n", err)
		os.Exit(1)
	}

	var (
		mu         sync.Mutex
		latencies  []time.Duration
		totalBytes int64
		totalMsgs  int64
	)

	warmupDeadline := time.Now().Add(*warmup)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for _, w := range workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				chunk, ok := w.output.Recv()
				if !ok {
					return
				}
				start := time.Now()
				w.session.PushOutput(chunk.Data)
				elapsed := time.Since(start)

				atomic.AddInt64(&totalBytes, int64(len(chunk.Data)))
				atomic.AddInt64(&totalMsgs, 1)

				if start.After(warmupDeadline) {
					mu.Lock()
					latencies = append(latencies, elapsed)
					mu.Unlock()
				}
			}
		}(w)
	}

	time.Sleep(*warmup + *duration)
	close(stop)

	// Each Close can block up to the manager's grace-period escalation
	// (SIGTERM, wait, then SIGKILL), so a bounded pool keeps shutdown from
	// serializing *terminals sequential 3-second waits.
	closePool := asyncutil.NewPool(spawnConcurrency)
	closeCtx := context.Background()
	var closeWg sync.WaitGroup
	for _, w := range workers {
		w := w
		closeWg.Add(1)
		go func() {
			defer closeWg.Done()
			err := closePool.Submit(closeCtx, func(ctx context.Context) error {
				_, err := manager.Close(w.id)
				return err
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "gridmux-bench: close %s: %v\n", w.id, err)
			}
		}()
	}
	closeWg.Wait()
	wg.Wait()

	s := summarize(latencies)
	measuredSecs := duration.Seconds()
	fmt.Printf("terminals=%d cols=%d rows=%d rate_hz=%d line_bytes=%d duration=%s\n",
		*terminals, *cols, *rows, *rateHz, *lineBytes, *duration)
	fmt.Printf("chunks=%d bytes=%d throughput=%.2f MB/s msgs/s=%.0f\n",
		totalMsgs, totalBytes, float64(totalBytes)/measuredSecs/1e6, float64(totalMsgs)/measuredSecs)
	fmt.Printf("push_output latency: avg=%s p50=%s p95=%s p99=%s min=%s max=%s\n",
		s.avg, s.p50, s.p95, s.p99, s.min, s.max)
}

// emitterCommand builds a shell one-liner that prints ANSI-styled lines at
// roughly rateHz per second, each padded to approximately lineBytes, so the
// VT parser has real SGR sequences and cursor movement to chew through
// rather than plain text.
func emitterCommand(rateHz, lineBytes int) string {
	if rateHz <= 0 {
		rateHz = 1
	}
	sleepSecs := 1.0 / float64(rateHz)
	padWidth := lineBytes
	if padWidth < 8 {
		padWidth = 8
	}
	pad := make([]byte, padWidth)
	for i := range pad {
		pad[i] = 'x'
	}
	// ptymgr.Manager.Spawn runs profile.Path via `sh -c`, so this is the
	// script body, not a nested shell invocation.
	return fmt.Sprintf(
		`i=0; while true; do printf "\033[1;3%%dmline %%06d %s\033[0m\n" "$((i %% 8))" "$i"; i=$((i+1)); sleep %f; done`,
		string(pad), sleepSecs,
	)
}

func summarize(durations []time.Duration) stats {
	if len(durations) == 0 {
		return stats{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return stats{
		avg: total / time.Duration(len(durations)),
		min: sorted[0],
		max: sorted[len(sorted)-1],
		p50: percentile(sorted, 0.50),
		p95: percentile(sorted, 0.95),
		p99: percentile(sorted, 0.99),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	pos := int(float64(len(sorted)-1) * p)
	if pos < 0 {
		pos = 0
	}
	if pos >= len(sorted) {
		pos = len(sorted) - 1
	}
	return sorted[pos]
}
