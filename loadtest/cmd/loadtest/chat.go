package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hookchat/chat-server/loadtest/client"
	"github.com/hookchat/chat-server/loadtest/stats"
)

// runChat implements the full chat lifecycle load test. Users connect, get
// matched, exchange a fixed number of messages, then move on with next.
// Message latency is measured as the round trip from send to the server's
// echo back to the sender, which is the same path a partner delivery takes.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 200, "Number of user pairs")
	ramp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	matchTimeout := fs.Duration("match-timeout", 30*time.Second, "Timeout waiting for match_found")
	messages := fs.Int("messages", 20, "Messages each user sends per chat")
	msgInterval := fs.Duration("msg-interval", 500*time.Millisecond, "Delay between messages from one user")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	fs.Parse(args)

	totalClients := *pairs * 2

	fmt.Printf("Chat test: %d pairs (%d clients) to %s (messages=%d, interval=%s)\n",
		*pairs, totalClients, *url, *messages, *msgInterval)

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
	// Phase 2 — Match, chat, next.
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 2: Match and chat ---")

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()

			sessionCh := make(chan string, 1)
			c.On(client.TypeMatchFound, func(raw json.RawMessage) {
				var mf client.MatchFound
				if json.Unmarshal(raw, &mf) == nil && mf.SessionID != "" {
					select {
					case sessionCh <- mf.SessionID:
					default:
					}
				}
			})

			// Echo tracking: sends carry a sequence number in the text, and
			// the handler matches echoes back to their send time.
			var (
				sentMu sync.Mutex
				sentAt = make(map[string]time.Time)
				selfID = c.UserID()
				echoed = make(chan struct{}, *messages)
			)
			c.On(client.TypeMessage, func(raw json.RawMessage) {
				var msg struct {
					From string `json:"from"`
					Text string `json:"text"`
				}
				if json.Unmarshal(raw, &msg) != nil || msg.From != selfID {
					return
				}
				sentMu.Lock()
				t, ok := sentAt[msg.Text]
				if ok {
					delete(sentAt, msg.Text)
				}
				sentMu.Unlock()
				if ok {
					collector.AddMsgLatency(time.Since(t))
					echoed <- struct{}{}
				}
			})

			joinedAt := time.Now()
			if err := c.Join("any", "any", nil); err != nil {
				collector.AddError()
				return
			}

			var sessionID string
			select {
			case sessionID = <-sessionCh:
				collector.AddMatchWait(time.Since(joinedAt))
			case <-time.After(*matchTimeout):
				collector.AddError()
				return
			case <-ctx.Done():
				return
			}

			for i := 0; i < *messages; i++ {
				text := fmt.Sprintf("msg-%s-%d", selfID, i)
				sentMu.Lock()
				sentAt[text] = time.Now()
				sentMu.Unlock()
				if err := c.SendChat(sessionID, text); err != nil {
					collector.AddError()
					return
				}

				select {
				case <-time.After(*msgInterval):
				case <-ctx.Done():
					return
				}
			}

			// Give the last echoes a moment to arrive before moving on.
			deadline := time.After(5 * time.Second)
			for received := 0; received < *messages; {
				select {
				case <-echoed:
					received++
				case <-deadline:
					return
				case <-ctx.Done():
					return
				}
			}

			_ = c.Next()
		}(c)
	}
	wg.Wait()

	fmt.Printf("\nPhase 2 complete: %d matches, %d errors\n",
		collector.MatchCount(), collector.ErrorCount())

	collector.Report()
}
