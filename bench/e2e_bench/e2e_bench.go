package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// AccountResp represents the server's response when an account is created.
type AccountResp struct {
	AccountID int64  `json:"account_id"`
	Token     string `json:"token"`
}

// Content represents a post or comment entity returned by the API.
type Content struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	CreatorID int64     `json:"creator_id"`
	Body      string    `json:"body"`
	Created   time.Time `json:"created"`
}

// Notification is one inbox entry returned by /notifications.
type Notification struct {
	EventType string `json:"event_type"`
	EventID   int64  `json:"event_id"`
}

func main() {
	// CLI flags
	var serverAddr string
	var U, C, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&U, "accounts", 50, "number of accounts to create")
	flag.IntVar(&C, "comments", 100, "number of comments to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for commenting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for notification delivery")
	flag.Parse()

	ctx := context.Background()

	// --- TLS setup for secure communication ---
	cert, err := tls.LoadX509KeyPair("../../certs/cert.pem", "../../certs/key.pem")
	if err != nil {
		panic(fmt.Sprintf("failed to load cert/key: %v", err))
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
			},
		},
		Timeout: 10 * time.Second,
	}

	// --- 1) Create accounts ---
	fmt.Printf("Creating %d accounts...\n", U)
	accounts := make([]AccountResp, 0, U)
	for i := 0; i < U; i++ {
		// Generate unique username
		payload := map[string]string{
			"username": fmt.Sprintf("e2e-%d-%d", i, time.Now().UnixNano()),
			"password": "bench-pass",
		}
		b, _ := json.Marshal(payload)

		// Send POST request to register
		resp, err := client.Post(serverAddr+"/signup", "application/json", bytes.NewReader(b))
		if err != nil {
			fmt.Printf("signup error: %v\n", err)
			os.Exit(1)
		}

		var ar AccountResp
		if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
			resp.Body.Close()
			fmt.Printf("decode signup resp error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		accounts = append(accounts, ar)
	}
	fmt.Println("Accounts created successfully.")

	// --- 2) Every account publishes one post to comment on ---
	fmt.Println("Creating one post per account...")
	type postRecord struct {
		ContentID int64
		AuthorIdx int
	}
	posts := make([]postRecord, 0, U)
	for i, a := range accounts {
		b, _ := json.Marshal(map[string]string{"body": fmt.Sprintf("e2e post %d", i)})
		req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/posts", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.Token)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("post error: %v\n", err)
			os.Exit(1)
		}
		var p Content
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			resp.Body.Close()
			fmt.Printf("decode post error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		posts = append(posts, postRecord{ContentID: p.ID, AuthorIdx: i})
	}
	fmt.Println("Posts created.")

	// --- 3) Publish comments concurrently ---
	fmt.Printf("Publishing %d comments with concurrency %d...\n", C, concurrency)
	type commentRecord struct {
		CommentID int64
		AuthorIdx int // index of the post author who should be notified
		Created   time.Time
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	commentsCh := make(chan commentRecord, C)

	for i := 0; i < C; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			target := posts[rand.Intn(len(posts))]
			commenter := accounts[rand.Intn(len(accounts))]
			if commenter.AccountID == accounts[target.AuthorIdx].AccountID {
				// self-comments produce no notification
				return
			}

			b, _ := json.Marshal(map[string]any{
				"body":        fmt.Sprintf("e2e comment %d", rand.Int()),
				"parent_id":   target.ContentID,
				"parent_kind": "post",
			})
			req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/comments", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+commenter.Token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("comment error: %v\n", err)
				return
			}
			var c Content
			if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
				resp.Body.Close()
				fmt.Printf("decode comment error: %v\n", err)
				return
			}
			resp.Body.Close()
			commentsCh <- commentRecord{CommentID: c.ID, AuthorIdx: target.AuthorIdx, Created: c.Created}
		}()
	}

	wg.Wait()
	close(commentsCh)

	// --- 4) Verify notification delivery to post authors ---
	fmt.Println("Checking notification delivery...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for cr := range commentsCh {
		checksWg.Add(1)
		go func(cr commentRecord) {
			defer checksWg.Done()
			deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
			token := accounts[cr.AuthorIdx].Token

			// Poll the inbox until the notification appears or timeout
			for time.Now().Before(deadline) {
				req, _ := http.NewRequestWithContext(ctx, "GET", serverAddr+"/notifications", nil)
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := client.Do(req)
				if err != nil {
					time.Sleep(200 * time.Millisecond)
					continue
				}

				var inbox []Notification
				if err := json.NewDecoder(resp.Body).Decode(&inbox); err != nil {
					resp.Body.Close()
					time.Sleep(200 * time.Millisecond)
					continue
				}
				resp.Body.Close()

				for _, n := range inbox {
					if n.EventID == cr.CommentID {
						lat := time.Since(cr.Created).Seconds() * 1000
						latMu.Lock()
						latencies = append(latencies, lat)
						latMu.Unlock()
						return
					}
				}
				time.Sleep(200 * time.Millisecond)
			}

			latMu.Lock()
			failCount++
			latMu.Unlock()
		}(cr)
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
	} else {
		trimPercent := 1.0
		meanVal := trimmedMean(latencies, trimPercent)
		p50 := trimmedPercentile(latencies, 50, trimPercent)
		p90 := trimmedPercentile(latencies, 90, trimPercent)
		p99 := trimmedPercentile(latencies, 99, trimPercent)
		fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
			len(latencies), meanVal, p50, p90, p99, failCount)

		// Export latencies to CSV
		f, _ := os.Create("e2e_latencies.csv")
		w := csv.NewWriter(f)
		w.Write([]string{"latency_ms"})
		for _, v := range latencies {
			w.Write([]string{fmt.Sprintf("%.3f", v)})
		}
		w.Flush()
		f.Close()
		fmt.Println("Saved e2e_latencies.csv")
	}
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	return percentile(data, p)
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f] * (float64(c) - k)
	d1 := data[c] * (k - float64(f))
	return d0 + d1
}
