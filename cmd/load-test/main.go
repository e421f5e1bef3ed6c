package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

// stats collects per-request latencies and failure reasons.
type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	success   int
	failures  map[string]int
}

func (s *stats) record(d time.Duration, failure string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	if failure == "" {
		s.success++
		return
	}
	s.failures[failure]++
}

func (s *stats) percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(s.latencies)-1) * p)
	return s.latencies[idx]
}

func sendOne(client *http.Client, url string, n int) string {
	body, _ := json.Marshal(sendMessageRequest{Message: fmt.Sprintf("load test message #%d", n)})

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err.Error()
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out sendMessageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("HTTP %d: undecodable body", resp.StatusCode)
	}
	if !out.Success {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(out.Error))
	}
	return ""
}

func runLoadTest(url string, total, concurrency int) (*stats, time.Duration) {
	s := &stats{failures: make(map[string]int)}
	client := &http.Client{Timeout: 60 * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				t := time.Now()
				failure := sendOne(client, url, n)
				s.record(time.Since(t), failure)
			}
		}()
	}
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	return s, time.Since(start)
}

func main() {
	base := flag.String("base", "http://localhost:8080", "relay-api base URL")
	total := flag.Int("n", 100, "number of sends")
	concurrency := flag.Int("c", 10, "concurrent senders")
	flag.Parse()

	resp, err := http.Get(*base + "/health")
	if err != nil {
		fmt.Printf("cannot reach relay-api at %s: %v\n", *base, err)
		return
	}
	resp.Body.Close()

	target := *base + "/api/send-message"
	fmt.Printf("sending %d messages to %s with concurrency %d\n", *total, target, *concurrency)

	s, elapsed := runLoadTest(target, *total, *concurrency)

	fmt.Printf("success:  %d/%d\n", s.success, *total)
	fmt.Printf("duration: %v (%.2f req/s)\n", elapsed, float64(*total)/elapsed.Seconds())
	fmt.Printf("latency:  p50=%v p95=%v max=%v\n", s.percentile(0.50), s.percentile(0.95), s.percentile(1))
	for reason, count := range s.failures {
		fmt.Printf("  %dx %s\n", count, reason)
	}
}
