package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/pairbook/pkg/backend/memory"
	redisbackend "github.com/erain9/pairbook/pkg/backend/redis"
	"github.com/erain9/pairbook/pkg/core"
	"github.com/erain9/pairbook/pkg/custody"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	basePrice = uint64(2000_00000000)
	tick      = uint64(50000000)
	// Latencies are recorded in microseconds up to one minute
	maxLatency = int64(time.Minute / time.Microsecond)
)

var (
	baseAsset  = common.HexToAddress("0xB000000000000000000000000000000000000001")
	quoteAsset = common.HexToAddress("0xC000000000000000000000000000000000000002")
	authority  = common.HexToAddress("0xA000000000000000000000000000000000000003")
)

// loadConfig sizes one run
type loadConfig struct {
	Workers         int
	OrdersPerWorker int
	Rate            int
	Seed            int64
}

// report is the outcome of a run, latencies per operation
type report struct {
	Duration  time.Duration
	Placed    int
	Filled    int
	Cancelled int
	Errors    int
	Latency   map[string]*hdrhistogram.Histogram
}

func main() {
	backend := flag.String("backend", "memory", "Book backend: memory or redis")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	workers := flag.Int("workers", 50, "Concurrent workers")
	orders := flag.Int("orders", 200, "Orders per worker")
	limit := flag.Int("rate", 5000, "Operations per second across all workers")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, cleaning up...")
		cancel()
	}()

	var index core.PriceLevelIndex = memory.NewPriceIndex()
	var store core.OrderQueueStore = memory.NewOrderStore()
	if *backend == "redis" {
		redisbackend.SetDefaultRedisOptions(&redisbackend.RedisOptions{Addr: *redisAddr})
		client := redisbackend.GetRedisClient()
		defer client.Close()
		prefix := fmt.Sprintf("loadtest:%d", time.Now().UnixNano())
		index = redisbackend.NewPriceIndex(client, prefix, zap.NewNop())
		store = redisbackend.NewOrderStore(client, prefix, zap.NewNop())
	}

	ledger := custody.NewLedger(common.Address{})
	book := core.NewOrderBook(index, store, ledger)
	if err := book.Initialize(ctx, 1,
		core.Asset{Address: baseAsset, Decimals: 18},
		core.Asset{Address: quoteAsset, Decimals: 6},
		authority); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pair")
	}

	log.Info().
		Str("backend", *backend).
		Int("workers", *workers).
		Int("orders_per_worker", *orders).
		Msg("Starting load test")

	r := runLoad(ctx, book, ledger, loadConfig{
		Workers:         *workers,
		OrdersPerWorker: *orders,
		Rate:            *limit,
		Seed:            time.Now().UnixNano(),
	})
	printReport(os.Stdout, r)

	if r.Errors > 0 {
		os.Exit(1)
	}
}

// runLoad drives the book from cfg.Workers goroutines. Each operation places
// a resting order, takes the best opposite order, or cancels one of the
// worker's own orders. Mutations are serialized on one mutex, as the book
// requires of its caller.
func runLoad(ctx context.Context, book *core.OrderBook, ledger *custody.Ledger, cfg loadConfig) *report {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = &report{Latency: make(map[string]*hdrhistogram.Histogram)}
		caller = core.NewCaller(authority)
	)
	for _, op := range []string{"place", "take", "cancel"} {
		result.Latency[op] = hdrhistogram.New(1, maxLatency, 3)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Workers)
	record := func(op string, start time.Time) {
		micros := time.Since(start).Microseconds()
		if micros < 1 {
			micros = 1
		}
		_ = result.Latency[op].RecordValue(micros)
	}

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(worker)))
			trader := common.BigToAddress(uint256.NewInt(uint64(0x1000 + worker)).ToBig())
			var mine []struct {
				side core.Side
				id   core.OrderID
			}

			for i := 0; i < cfg.OrdersPerWorker; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				side := core.SideOf(rng.Intn(2) == 0)
				roll := rng.Intn(10)

				mu.Lock()
				began := time.Now()
				var err error
				switch {
				case roll < 2 && len(mine) > 0:
					k := rng.Intn(len(mine))
					o := mine[k]
					mine = append(mine[:k], mine[k+1:]...)
					err = book.Cancel(ctx, caller, o.side, o.id, trader)
					if err == nil {
						result.Cancelled++
					}
					record("cancel", began)
				case roll < 5:
					var filled bool
					filled, err = take(ctx, book, ledger, caller, side, trader)
					if filled {
						result.Filled++
					}
					record("take", began)
				default:
					var id core.OrderID
					id, err = place(ctx, book, ledger, caller, side, trader, rng)
					if err == nil {
						result.Placed++
						mine = append(mine, struct {
							side core.Side
							id   core.OrderID
						}{side, id})
					}
					record("place", began)
				}
				if err != nil && !isExpected(err) {
					result.Errors++
					log.Debug().Err(err).Int("worker", worker).Msg("Operation failed")
				}
				mu.Unlock()
			}
		}(w)
	}

	wg.Wait()
	result.Duration = time.Since(start)
	return result
}

// place rests an order a few ticks away from the base price
func place(ctx context.Context, book *core.OrderBook, ledger *custody.Ledger, caller core.Caller, side core.Side, trader common.Address, rng *rand.Rand) (core.OrderID, error) {
	offset := uint64(rng.Intn(20)) * tick
	price := basePrice + tick + offset
	amount := uint256.NewInt(uint64(1+rng.Intn(10)) * 1_000_000_000_000_000)
	if side == core.Bid {
		price = basePrice - offset
		amount = book.Pair().Convert(price, amount, true)
	}

	ledger.Fund(book.Pair().DepositAsset(side), amount)
	if side == core.Bid {
		return book.PlaceBid(ctx, caller, trader, price, amount)
	}
	return book.PlaceAsk(ctx, caller, trader, price, amount)
}

// take fully fills the best order on the opposite side of side, if any
func take(ctx context.Context, book *core.OrderBook, ledger *custody.Ledger, caller core.Caller, side core.Side, trader common.Address) (bool, error) {
	maker := side.Opposite()
	best := book.BestPrice(maker)
	if best == core.NoPrice {
		return false, nil
	}

	budget := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	id, required, filled, err := book.TryPop(ctx, caller, maker, best, budget)
	if err != nil || !filled {
		return false, err
	}

	ledger.Fund(book.Pair().CounterAsset(maker), required)
	if _, err := book.Execute(ctx, caller, maker, id, trader, required, true); err != nil {
		return false, err
	}
	if err := book.SetLastTradedPrice(ctx, caller, best); err != nil {
		return true, err
	}
	return true, nil
}

// isExpected reports errors a random workload produces in normal operation
func isExpected(err error) bool {
	return errors.Is(err, core.ErrNonexistentOrder)
}

func printReport(w io.Writer, r *report) {
	total := r.Placed + r.Filled + r.Cancelled
	fmt.Fprintf(w, "Load test completed in %v\n", r.Duration)
	fmt.Fprintf(w, "Placed: %d  Filled: %d  Cancelled: %d  Errors: %d\n", r.Placed, r.Filled, r.Cancelled, r.Errors)
	if r.Duration > 0 {
		fmt.Fprintf(w, "Throughput: %.0f ops/s\n", float64(total)/r.Duration.Seconds())
	}
	for _, op := range []string{"place", "take", "cancel"} {
		h := r.Latency[op]
		if h.TotalCount() == 0 {
			continue
		}
		fmt.Fprintf(w, "%-7s n=%-7d p50=%dus p99=%dus max=%dus\n",
			op, h.TotalCount(), h.ValueAtQuantile(50), h.ValueAtQuantile(99), h.Max())
	}
}
