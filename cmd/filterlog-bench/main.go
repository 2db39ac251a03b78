// Package main provides a load generator for a running filterlog server. It
// drives concurrent requests at one route and reports the status mix and
// latency percentiles, which can be compared with the server's access log
// and request duration histogram.
//
// Usage:
//
//	filterlog-bench --url http://localhost:8080/api/v1/ping --clients 32 --duration 30s
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	target := flag.String("url", "http://localhost:8080/api/v1/ping", "URL to request")
	method := flag.String("method", http.MethodGet, "HTTP method")
	body := flag.String("body", "", "Request body (PUT/POST)")
	clients := flag.Int("clients", 32, "Number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	if *clients < 1 {
		fmt.Fprintln(os.Stderr, "Error: --clients must be at least 1")
		os.Exit(1)
	}

	fmt.Printf("filterlog Benchmark\n")
	fmt.Printf("-----------------------------------\n")
	fmt.Printf("URL:        %s %s\n", *method, *target)
	fmt.Printf("Clients:    %d\n", *clients)
	fmt.Printf("Duration:   %s\n", *duration)
	fmt.Printf("-----------------------------------\n\n")

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *clients,
			MaxIdleConnsPerHost: *clients,
		},
	}

	var totalBytes atomic.Int64
	var totalErrors atomic.Int64

	var mu sync.Mutex
	var latencies []int64
	statuses := make(map[int]int64)

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var localLats []int64
			localStatus := make(map[int]int64)

			for time.Since(start) < *duration {
				var rd io.Reader
				if *body != "" {
					rd = strings.NewReader(*body)
				}
				req, err := http.NewRequest(*method, *target, rd)
				if err != nil {
					totalErrors.Add(1)
					return
				}

				opStart := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					totalErrors.Add(1)
					continue
				}
				n, _ := io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				lat := time.Since(opStart).Nanoseconds()

				totalBytes.Add(n)
				localLats = append(localLats, lat)
				localStatus[resp.StatusCode]++
			}

			mu.Lock()
			latencies = append(latencies, localLats...)
			for code, n := range localStatus {
				statuses[code] += n
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	ops := int64(len(latencies))
	rps := float64(ops) / elapsed.Seconds()

	var avgLatMs, p50LatMs, p95LatMs, p99LatMs float64
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum int64
		for _, l := range latencies {
			sum += l
		}
		avgLatMs = float64(sum) / float64(len(latencies)) / 1e6
		p50LatMs = float64(percentile(latencies, 50)) / 1e6
		p95LatMs = float64(percentile(latencies, 95)) / 1e6
		p99LatMs = float64(percentile(latencies, 99)) / 1e6
	}

	fmt.Printf("Results\n")
	fmt.Printf("-----------------------------------\n")
	fmt.Printf("Duration:    %s\n", elapsed.Truncate(time.Millisecond))
	fmt.Printf("Requests:    %d\n", ops)
	fmt.Printf("Req/s:       %.0f\n", rps)
	fmt.Printf("Bytes Read:  %s\n", humanBytes(totalBytes.Load()))
	fmt.Printf("Errors:      %d\n", totalErrors.Load())
	fmt.Printf("-----------------------------------\n")
	fmt.Printf("Status:\n")
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d:       %d\n", code, statuses[code])
	}
	fmt.Printf("-----------------------------------\n")
	fmt.Printf("Latency:\n")
	fmt.Printf("  Average:   %.2f ms\n", avgLatMs)
	fmt.Printf("  P50:       %.2f ms\n", p50LatMs)
	fmt.Printf("  P95:       %.2f ms\n", p95LatMs)
	fmt.Printf("  P99:       %.2f ms\n", p99LatMs)
	fmt.Printf("-----------------------------------\n")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(pct)/100.0*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func humanBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffix := []string{"KB", "MB", "GB", "TB", "PB"}
	if exp >= len(suffix) {
		exp = len(suffix) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(b)/float64(div), suffix[exp])
}
