package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/core/service"
	"github.com/rl1809/asset-ledger/internal/port"
)

func main() {
	var (
		backend     string
		redisAddr   string
		licenseID   string
		seats       int
		requests    int
		maxAttempts int
	)
	fs := pflag.NewFlagSet("stress_test", pflag.ExitOnError)
	fs.StringVar(&backend, "store", "memory", "store backend: memory or redis")
	fs.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis address")
	fs.StringVar(&licenseID, "license", "stress-license", "license id to allocate against")
	fs.IntVarP(&seats, "seats", "s", 20, "total seats on the license")
	fs.IntVarP(&requests, "requests", "n", 50, "concurrent assignment requests")
	fs.IntVar(&maxAttempts, "max-attempts", service.DefaultMaxAttempts, "optimistic retry budget per request")
	fs.Parse(os.Args[1:])

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	var store port.InvariantStore[domain.License]
	switch backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()

		// Clear previous run
		rdb.Del(ctx, "license:{"+licenseID+"}", "license:{"+licenseID+"}:users")
		rdb.SRem(ctx, "license:ids", licenseID)
		store = storage.NewRedisLicenseStore(rdb)
	case "memory":
		store = storage.NewMemoryStore[domain.License]("license")
	default:
		logger.Fatal("unknown store backend", zap.String("store", backend))
	}

	allocator := service.NewLicenseSeats(store, service.Sinks{}, logger, maxAttempts)

	license, err := domain.NewLicense(licenseID, "stress", seats, time.Now())
	if err != nil {
		logger.Fatal("invalid license", zap.Error(err))
	}
	if err := allocator.Create(ctx, license); err != nil {
		logger.Fatal("failed to create license", zap.Error(err))
	}

	var (
		successCount atomic.Int32
		fullCount    atomic.Int32
		otherCount   atomic.Int32
		retryCount   atomic.Int32
	)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			for {
				_, err := allocator.Assign(ctx, licenseID, userID, "stress")
				switch {
				case err == nil:
					successCount.Add(1)
				case domain.IsRetryable(err):
					retryCount.Add(1)
					continue
				case errors.Is(err, domain.ErrCapacityExceeded):
					fullCount.Add(1)
				default:
					otherCount.Add(1)
					logger.Warn("assign failed", zap.String("user_id", userID), zap.Error(err))
				}
				return
			}
		}("user-" + uuid.NewString())
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	full := fullCount.Load()
	expectedSuccess := min(seats, requests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", backend)
	fmt.Printf("Total Seats:      %d\n", seats)
	fmt.Printf("Total Requests:   %d\n", requests)
	fmt.Printf("Assigned:         %d\n", success)
	fmt.Printf("Rejected (full):  %d\n", full)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Conflict Retries: %d\n", retryCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if int(success) == expectedSuccess && int(full) == requests-expectedSuccess {
		fmt.Printf("PASS: Exactly %d seats assigned, %d rejected\n", expectedSuccess, requests-expectedSuccess)
	} else {
		fmt.Printf("FAIL: Expected %d assigned/%d rejected, got %d/%d\n",
			expectedSuccess, requests-expectedSuccess, success, full)
		failed = true
	}

	usage, err := allocator.Utilization(ctx, licenseID)
	if err != nil {
		logger.Fatal("failed to read utilization", zap.Error(err))
	}
	fmt.Printf("Final Utilization: %d/%d\n", usage.Used, usage.Capacity)

	if usage.Used <= usage.Capacity && usage.Used == int(success) {
		fmt.Println("PASS: Seats never oversubscribed")
	} else {
		fmt.Printf("FAIL: used=%d capacity=%d assigned=%d\n", usage.Used, usage.Capacity, success)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
