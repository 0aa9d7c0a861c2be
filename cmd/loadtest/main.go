package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"kvrelay/client"

	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8000", "Proxy or node base URL")
	mode := flag.String("mode", "concurrency", "concurrency or throughput")
	n := flag.Int("n", 10, "Number of requests per phase")
	workers := flag.Int("workers", 20, "Maximum requests in flight")
	token := flag.String("token", "", "Bearer token")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	c := client.New(*addr, client.WithToken(*token))
	ctx := context.Background()

	if !waitForServer(ctx, c, 10*time.Second) {
		logrus.Fatalf("Server is not available at %s", *addr)
	}

	var err error
	switch *mode {
	case "concurrency":
		err = runConcurrency(ctx, c, *n, *workers)
	case "throughput":
		err = runThroughput(ctx, c, *n, *workers)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logrus.WithError(err).Error("Load test failed")
		os.Exit(1)
	}
}

func waitForServer(ctx context.Context, c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := c.Get(ctx, "__ready__"); err == nil || errors.Is(err, client.ErrKeyNotFound) {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// parallel runs fn(i) for i in [0,n) with at most workers in flight.
func parallel(n, workers int, fn func(i int) error) []error {
	errs := make([]error, n)
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}

func report(phase string, errs []error) {
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			logrus.WithFields(logrus.Fields{"phase": phase, "task": i}).WithError(err).Info("Request result")
		}
	}
	logrus.WithFields(logrus.Fields{"phase": phase, "total": len(errs), "failed": failed}).Info("Phase complete")
}

// runConcurrency puts, reads, deletes and re-reads n keys concurrently.
func runConcurrency(ctx context.Context, c *client.Client, n, workers int) error {
	key := func(i int) string { return fmt.Sprintf("key-%d", i) }

	report("put", parallel(n, workers, func(i int) error {
		return c.Put(ctx, key(i), fmt.Sprintf("value-%d", i))
	}))
	time.Sleep(500 * time.Millisecond)

	report("get", parallel(n, workers, func(i int) error {
		_, err := c.Get(ctx, key(i))
		return err
	}))

	report("delete", parallel(n, workers, func(i int) error {
		return c.Delete(ctx, key(i))
	}))
	time.Sleep(500 * time.Millisecond)

	// every key should now be gone
	stale := 0
	for _, err := range parallel(n, workers, func(i int) error {
		_, err := c.Get(ctx, key(i))
		return err
	}) {
		if !errors.Is(err, client.ErrKeyNotFound) {
			stale++
		}
	}
	if stale > 0 {
		return fmt.Errorf("%d keys still readable after delete", stale)
	}
	return nil
}

// runThroughput writes one key and measures concurrent reads of it.
func runThroughput(ctx context.Context, c *client.Client, n, workers int) error {
	if err := c.Put(ctx, "test-key", "test-value"); err != nil {
		return fmt.Errorf("set test key: %w", err)
	}

	start := time.Now()
	errs := parallel(n, workers, func(int) error {
		_, err := c.Get(ctx, "test-key")
		return err
	})
	elapsed := time.Since(start)

	report("get", errs)
	logrus.WithFields(logrus.Fields{
		"requests":       n,
		"elapsed":        elapsed.Round(time.Millisecond),
		"requests_per_s": fmt.Sprintf("%.2f", float64(n)/elapsed.Seconds()),
	}).Info("Throughput")
	return nil
}
