package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hookchat/chat-server/loadtest/client"
	"github.com/hookchat/chat-server/loadtest/stats"
)

// rampUp connects n clients to url, spreading connection attempts over the
// ramp duration with at most concurrency simultaneous dials. Each client has
// completed the connected greeting before it is returned. Progress is
// printed every 2 seconds. Returns the connected clients; a cancelled
// context cuts the ramp short and returns whatever connected so far.
func rampUp(ctx context.Context, collector *stats.Collector, url string, n int, ramp time.Duration, concurrency int) []*client.Client {
	interval := ramp / time.Duration(n)
	if interval <= 0 {
		interval = time.Millisecond
	}

	var mu sync.Mutex
	clients := make([]*client.Client, 0, n)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	progressStop := make(chan struct{})
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		lastCount := 0
		lastTime := time.Now()
		for {
			select {
			case <-ticker.C:
				now := time.Now()
				currentConns := collector.ConnectionCount()
				currentErrs := collector.ErrorCount()
				rate := float64(currentConns-lastCount) / now.Sub(lastTime).Seconds()
				fmt.Printf("  [connect] connections: %d/%d  errors: %d  rate: %.1f conn/s\n",
					currentConns, n, currentErrs, rate)
				lastCount = currentConns
				lastTime = now
			case <-progressStop:
				return
			}
		}
	}()

	start := time.Now()
	ticker := time.NewTicker(interval)

	launched := 0
	for launched < n {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during connection phase.")
			launched = n // break the loop
		case <-ticker.C:
			launched++
			wg.Add(1)
			sem <- struct{}{}

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
				defer connCancel()

				c, err := client.New(connCtx, url)
				if err != nil {
					collector.AddError()
					return
				}
				if err := c.WaitForUserID(connCtx); err != nil {
					collector.AddError()
					c.Close()
					return
				}

				collector.AddConnect(c.GetMetrics().ConnectLatency)

				mu.Lock()
				clients = append(clients, c)
				mu.Unlock()
			}()
		}
	}

	ticker.Stop()
	wg.Wait()
	close(progressStop)
	progressWg.Wait()

	fmt.Printf("\nConnect phase complete: %d/%d connections in %s (%d errors)\n",
		collector.ConnectionCount(), n,
		time.Since(start).Round(time.Millisecond), collector.ErrorCount())

	return clients
}

// closeAll closes every client, printing a short cleanup banner.
func closeAll(clients []*client.Client) {
	fmt.Println("\n--- Cleanup ---")
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		c.Close()
	}
	fmt.Println("All connections closed.")
}
