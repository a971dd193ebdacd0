// Command loadtest fires a configurable burst of concurrent GET requests
// at a running load balancer and reports per-backend distribution and
// latency.
//
// Uses a semaphore-bounded worker pool over a buffered channel to cap
// in-flight requests, the same channel-as-semaphore shape used on the
// server side for admission control.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

type backendStat struct {
	count        int
	totalLatency time.Duration
}

func main() {
	url := flag.String("url", "http://127.0.0.1:3000/", "load balancer URL to hit")
	total := flag.Int("requests", 1000, "total number of requests to send")
	concurrency := flag.Int("concurrency", 50, "maximum in-flight requests")
	flag.Parse()

	if *total <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "requests and concurrency must both be positive")
		os.Exit(2)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: *concurrency,
		},
	}

	var mu sync.Mutex
	stats := make(map[string]*backendStat)

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	fmt.Printf("starting load test: %d requests, concurrency %d, target %s\n", *total, *concurrency, *url)
	start := time.Now()

	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			reqStart := time.Now()
			name, err := fireOne(client, *url)
			dur := time.Since(reqStart)
			if err != nil {
				name = "error"
			}

			mu.Lock()
			s, ok := stats[name]
			if !ok {
				s = &backendStat{}
				stats[name] = s
			}
			s.count++
			s.totalLatency += dur
			mu.Unlock()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println()
	fmt.Println("RESULTS")
	fmt.Printf("total time:      %s\n", elapsed)
	fmt.Printf("requests/sec:    %.2f\n", float64(*total)/elapsed.Seconds())

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		percent := float64(s.count) / float64(*total) * 100
		avg := s.totalLatency.Seconds() / float64(s.count)
		fmt.Printf("%-20s %5d reqs (%5.1f%%) avg=%.4fs\n", name, s.count, percent, avg)
	}
}

// fireOne issues a single GET and identifies the serving backend from the
// X-Upstream-Name response header the demo upstream server sets.
func fireOne(client *http.Client, url string) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if name := resp.Header.Get("X-Upstream-Name"); name != "" {
		return name, nil
	}
	return "unknown", nil
}
