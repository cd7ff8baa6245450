package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 200, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (get + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs", "redis key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goSession.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix

	client, err := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithTransport(&benchAuthority{}).
		WithLatencyHistograms(true).
		Build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	ids := make([]string, 0, *sessions)
	for i := 0; i < *sessions; i++ {
		entry, err := client.CreateSession(ctx, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create session: %v\n", err)
			os.Exit(1)
		}
		expire := time.Now().Add(24 * time.Hour)
		if _, err := client.FromResponse(ctx, goSession.SessionData{
			SessionID: entry.ID,
			Token:     benchToken(entry.ID, 0),
			ExpireAt:  &expire,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "bind session: %v\n", err)
			os.Exit(1)
		}
		ids = append(ids, entry.ID)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	getStats := runPhase(ctx, ids, *ops, *concurrency, client.GetToken)
	refreshStats := runPhase(ctx, ids, *ops, *concurrency, client.ForceToken)

	fmt.Println("---- results ----")
	printStats("get", getStats)
	printStats("refresh", refreshStats)

	snap := client.MetricsSnapshot()
	fmt.Printf("refresh success=%d coalesced=%d failures=%d\n",
		snap.Counters[goSession.MetricRefreshSuccess],
		snap.Counters[goSession.MetricRefreshCoalesced],
		snap.Counters[goSession.MetricRefreshFailure],
	)
}

func runPhase(ctx context.Context, ids []string, ops, concurrency int, op func(context.Context, ...string) (string, error)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				sid := ids[r.Intn(len(ids))]
				t0 := time.Now()
				_, err := op(ctx, sid)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// benchAuthority is an in-process authority stub so the load test measures
// engine and persistence overhead, not network round trips. Tokens encode
// the session id so the current-user endpoint can answer without state.
type benchAuthority struct {
	issued atomic.Int64
}

func benchToken(sessionID string, n int64) string {
	return fmt.Sprintf("bench.%s.%d", sessionID, n)
}

func benchUser(token string) (goSession.User, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != "bench" {
		return goSession.User{}, false
	}
	return goSession.User{
		ID:    "user-" + parts[1],
		Email: parts[1] + "@bench.local",
	}, true
}

func (a *benchAuthority) Get(_ context.Context, path string, opts goSession.CallOptions, out any) error {
	if path != "auth/me" {
		return &goSession.RequestError{Kind: goSession.KindNotFound, Status: 404}
	}
	token := strings.TrimPrefix(opts.Headers["Authorization"], "Bearer ")
	user, ok := benchUser(token)
	if !ok {
		return &goSession.RequestError{Kind: goSession.KindUnauthorized, Status: 401}
	}
	if u, ok := out.(*goSession.User); ok {
		*u = user
	}
	return nil
}

func (a *benchAuthority) Post(_ context.Context, path string, _ any, _ goSession.CallOptions, out any) error {
	if !strings.HasPrefix(path, "auth/sessions/") || !strings.HasSuffix(path, "/token") {
		return &goSession.RequestError{Kind: goSession.KindNotFound, Status: 404}
	}
	sid := strings.TrimSuffix(strings.TrimPrefix(path, "auth/sessions/"), "/token")

	expire := time.Now().Add(24 * time.Hour)
	if data, ok := out.(*goSession.SessionData); ok {
		*data = goSession.SessionData{
			SessionID: sid,
			Token:     benchToken(sid, a.issued.Add(1)),
			ExpireAt:  &expire,
		}
	}
	return nil
}
