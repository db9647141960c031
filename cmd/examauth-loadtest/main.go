// Command examauth-loadtest drives login, authenticate, refresh and OTP
// traffic against an engine backed by Redis (or miniredis) and prints
// latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/examauth"
	"github.com/MrEthical07/examauth/password"
	"github.com/MrEthical07/examauth/permission"
)

const seedPassword = "carga-de-prueba"

type userState struct {
	email string
	mu    sync.Mutex
	pair  examauth.TokenPair
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed and log in")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (authenticate, refresh, otp)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := examauth.DefaultConfig()
	cfg.JWT.AccessSecret = "loadtest-access-secret-0123456789abcdef"
	cfg.JWT.RefreshSecret = "loadtest-refresh-secret-0123456789abcdef"
	cfg.Session.ReapInterval = 0
	cfg.RateLimit = examauth.RateLimitConfig{}
	cfg.Password = password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

	store, states, err := seedUsers(cfg.Password, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	codes := &sync.Map{}
	engine, err := examauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithNotifier(examauth.NotifierFunc(func(_ context.Context, d examauth.OTPDelivery) error {
			codes.Store(d.Email, d.Code)
			return nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	loginStats := runPhase(len(states), *concurrency, func(i int, _ *rand.Rand) error {
		res, err := engine.Login(ctx, examauth.LoginInput{Email: states[i].email, Password: seedPassword})
		if err != nil {
			return err
		}
		states[i].pair = *res.Tokens
		return nil
	})

	authStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.pair.AccessToken
		st.mu.Unlock()
		_, err := engine.Authenticate(ctx, "Bearer "+token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.pair.RefreshToken)
		if err != nil {
			return err
		}
		st.pair = pair
		return nil
	})

	otpStats := runPhase(*ops, *concurrency, func(i int, _ *rand.Rand) error {
		email := fmt.Sprintf("otp-%d@loadtest.local", i)
		if _, err := engine.GenerateOTP(ctx, email, examauth.OTPPurposeLogin); err != nil {
			return err
		}
		code, ok := waitForCode(codes, email)
		if !ok {
			return fmt.Errorf("no code for %s", email)
		}
		_, err := engine.VerifyOTP(ctx, email, code, examauth.OTPPurposeLogin)
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
	printStats("otp", otpStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("replays rejected=%d downstream failures=%d best-effort failures=%d\n",
		snap.Counters[examauth.MetricRefreshReplayRejected],
		snap.Counters[examauth.MetricDownstreamFailure],
		snap.Counters[examauth.MetricBestEffortFailure],
	)
}

func seedUsers(pc password.Argon2Config, n int) (*memoryStore, []userState, error) {
	verifier, err := password.NewVerifier(pc)
	if err != nil {
		return nil, nil, err
	}
	hash, err := verifier.Hash(seedPassword)
	if err != nil {
		return nil, nil, err
	}

	fmt.Printf("seeding %d users...\n", n)
	store := &memoryStore{byEmail: make(map[string]*examauth.Credential, n), byID: make(map[string]*examauth.Credential, n)}
	states := make([]userState, n)
	for i := 0; i < n; i++ {
		cred := &examauth.Credential{
			UserID:       fmt.Sprintf("u-%d", i),
			Email:        fmt.Sprintf("student-%d@loadtest.local", i),
			PasswordHash: hash,
			Role:         permission.RoleStudent,
			Active:       true,
		}
		store.byEmail[cred.Email] = cred
		store.byID[cred.UserID] = cred
		states[i].email = cred.Email
	}
	return store, states, nil
}

// waitForCode polls for a delivery; the notifier runs asynchronously.
func waitForCode(codes *sync.Map, email string) (string, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := codes.LoadAndDelete(email); ok {
			return v.(string), true
		}
		time.Sleep(time.Millisecond)
	}
	return "", false
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
				t0 := time.Now()
				err := op(i, r)
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
	return computeStats(time.Since(start), latencies, failures)
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
	return samples[(len(samples)-1)*p/100]
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
