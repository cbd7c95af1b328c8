package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hookchat/chat-server/loadtest/client"
	"github.com/hookchat/chat-server/loadtest/stats"
)

// runMatch implements the matching flow load test. All connected users join
// the queue with permissive preferences, so the matchmaker pairs them FIFO;
// the test measures how long each user waits for match_found under load.
func runMatch(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 500, "Number of user pairs to match")
	ramp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	matchTimeout := fs.Duration("match-timeout", 30*time.Second, "Timeout waiting for match_found")
	interests := fs.String("interests", "", "Comma-separated interest tags (empty = match on anything)")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	fs.Parse(args)

	totalClients := *pairs * 2

	fmt.Printf("Match test: %d pairs (%d clients) to %s (ramp=%s, match-timeout=%s, interests=%q)\n",
		*pairs, totalClients, *url, *ramp, *matchTimeout, *interests)

	var interestTags []string
	for _, tag := range strings.Split(*interests, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			interestTags = append(interestTags, tag)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	fmt.Println("\n--- Phase 1: Connect all users ---")
	clients := rampUp(ctx, collector, *url, totalClients, *ramp, *concurrency)
	defer closeAll(clients)

	if ctx.Err() != nil {
		collector.Report()
		return
	}

	// -----------------------------------------------------------------------
	// Phase 2 — Everyone joins the queue; wait for match_found.
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 2: Join and match ---")

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()

			matched := make(chan struct{})
			joinedAt := time.Now()
			c.On(client.TypeMatchFound, func(raw json.RawMessage) {
				var mf client.MatchFound
				if json.Unmarshal(raw, &mf) != nil || mf.SessionID == "" {
					collector.AddError()
					return
				}
				collector.AddMatchWait(time.Since(joinedAt))
				close(matched)
			})

			if err := c.Join("any", "any", interestTags); err != nil {
				collector.AddError()
				return
			}

			select {
			case <-matched:
			case <-time.After(*matchTimeout):
				collector.AddError()
			case <-ctx.Done():
			}
		}(c)
	}
	wg.Wait()

	fmt.Printf("\nPhase 2 complete: %d/%d users matched (%d errors)\n",
		collector.MatchCount(), totalClients, collector.ErrorCount())

	collector.Report()
}
