// Command retrocellbench drives a retrocell.Cell under synthetic
// concurrent load and reports reader/writer throughput. It lives outside
// the library package, the same way a benchmark harness for a
// synchronization primitive generally does.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retrocell/retrocell"
)

func main() {
	readers := flag.Int("readers", 8, "number of concurrent reader goroutines")
	duration := flag.Duration("duration", 2*time.Second, "how long to run")
	cowRatio := flag.Float64("cow-ratio", 0.5, "probability that the writer borrows an extra reader stake before each write, forcing try_write into its Congested/COW path instead of in-place")
	pauseEvery := flag.Duration("pause-every", 200*time.Millisecond, "interval at which all readers are paused at the gate and then released together")
	pauseFor := flag.Duration("pause-for", 10*time.Millisecond, "how long each pause lasts")
	flag.Parse()

	w, r := retrocell.New(0)

	// gate starts open; the pacer goroutine periodically closes it for
	// pause-for, parking every reader before its next TryRead, then
	// reopens it so they all resume at once. Congested writes are forced
	// separately, by the writer's cow-ratio pin below.
	var gate retrocell.Gate
	gate.Open()

	// rally synchronizes every goroutine's first iteration so throughput
	// measurement starts from a common point rather than a staggered
	// ramp-up.
	var rally retrocell.Rally
	parties := *readers + 2 // readers + writer + pacer

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var reads, writes, congestions int64

	g, _ := errgroup.WithContext(context.Background())

	for i := 0; i < *readers; i++ {
		g.Go(func() error {
			rr := r.Clone()
			rally.Meet(parties)
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				gate.Wait()
				res := rr.TryRead()
				if guard, ok := res.Success(); ok {
					_ = *guard.Value()
					guard.Release()
				} else {
					blocked, _ := res.Blocked()
					if rg, ok := blocked.ReadRetro(); ok {
						rg.Release()
					} else {
						blocked.Release()
					}
				}
				atomic.AddInt64(&reads, 1)
			}
		})
	}

	g.Go(func() error {
		rally.Meet(parties)
		// forceReader holds no value of its own; it exists only so the
		// writer can borrow an extra reader stake to force try_write
		// into its Congested path on demand, rather than relying on the
		// real reader goroutines to happen to be holding one at the
		// right instant.
		forceReader := r.Clone()
		i := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			i++
			var pin *retrocell.ReadGuard[int]
			if rand.Float64() < *cowRatio {
				if pg, ok := forceReader.TryRead().Success(); ok {
					pin = pg
				}
			}
			outcome := w.TryWrite()
			if wg, ok := outcome.InPlace(); ok {
				*wg.Value() = i
				wg.Release()
			} else {
				cow, _ := outcome.Congested()
				atomic.AddInt64(&congestions, 1)
				v := i
				cow.PerformCOW(func(x *int) { *x = v })
			}
			if pin != nil {
				pin.Release()
			}
			atomic.AddInt64(&writes, 1)
		}
	})

	g.Go(func() error {
		rally.Meet(parties)
		ticker := time.NewTicker(*pauseEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				gate.Close()
				time.Sleep(*pauseFor)
				gate.Open()
			}
		}
	})

	start := time.Now()
	if err := g.Wait(); err != nil {
		log.Fatalf("retrocellbench: %v", err)
	}
	elapsed := time.Since(start)

	log.Printf("elapsed=%s reads=%d writes=%d congestions=%d reads/s=%.0f writes/s=%.0f",
		elapsed, reads, writes, congestions,
		float64(reads)/elapsed.Seconds(), float64(writes)/elapsed.Seconds())
}
