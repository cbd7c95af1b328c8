package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookchat/chat-server/internal/engine"
	"github.com/hookchat/chat-server/internal/messaging"
	"github.com/hookchat/chat-server/internal/metrics"
	"github.com/hookchat/chat-server/internal/protocol"
	"github.com/hookchat/chat-server/internal/report"
	"github.com/hookchat/chat-server/internal/translate"
	"github.com/hookchat/chat-server/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	engineConfig := engine.DefaultConfig()
	if v := os.Getenv("REQUEUE_ON_PARTNER_DISCONNECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			engineConfig.RequeueOnPartnerDisconnect = b
		}
	}
	eng := engine.New(engineConfig)

	// --- NATS (report pipeline) ---
	// The server runs fine without NATS; reports then stay in the server log
	// instead of reaching the moderator process.
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Printf("nats unavailable, reports will be log-only: %v", err)
		natsClient = nil
	}

	// --- Redis (translation cache) ---
	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, translation cache disabled: %v", err)
			rdb = nil
		}
		cancel()
	}

	translator := translate.NewClient(
		os.Getenv("TRANSLATE_API_URL"),
		os.Getenv("TRANSLATE_API_KEY"),
		rdb,
	)

	log.Printf("HookChat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  requeue_policy:  %v", engineConfig.RequeueOnPartnerDisconnect)
	log.Printf("  nats:            %v", natsClient != nil)
	log.Printf("  translate_cache: %v", rdb != nil)

	// Declare server early so closures can capture it.
	var server *ws.Server

	// waitingSince records when each user entered the queue, for the
	// match-wait histogram. Guarded by its own mutex; touched only on
	// join/next/match/disconnect, never per message.
	var (
		waitMu       sync.Mutex
		waitingSince = make(map[string]time.Time)
	)
	markWaiting := func(id string) {
		waitMu.Lock()
		waitingSince[id] = time.Now()
		waitMu.Unlock()
	}
	takeWaiting := func(id string) (time.Time, bool) {
		waitMu.Lock()
		defer waitMu.Unlock()
		t, ok := waitingSince[id]
		if ok {
			delete(waitingSince, id)
		}
		return t, ok
	}

	// deliver maps engine notices to wire messages and writes them out.
	deliver := func(notices []engine.Notice) {
		for _, n := range notices {
			var (
				data []byte
				err  error
			)
			switch ev := n.Event.(type) {
			case engine.MatchFound:
				if since, ok := takeWaiting(n.To); ok {
					metrics.MatchWait.Observe(time.Since(since).Seconds())
				}
				// A match emits one notice per side; count the pair once.
				if n.To < ev.PartnerID {
					metrics.MatchesTotal.Inc()
				}
				data, err = protocol.NewServerMessage(protocol.TypeMatchFound, protocol.MatchFoundMsg{
					SessionID:       ev.SessionID,
					SharedInterests: ev.SharedInterests,
					Partner:         protocol.PartnerInfo{ID: ev.PartnerID, Avatar: ev.PartnerAvatar},
				})
			case engine.Message:
				data, err = protocol.NewServerMessage(protocol.TypeMessage, protocol.ServerChatMsg{
					SessionID: ev.SessionID,
					From:      ev.From,
					Kind:      ev.Kind,
					Text:      ev.Text,
					ImageURL:  ev.ImageURL,
					Ts:        ev.Ts,
				})
			case engine.Typing:
				data, err = protocol.NewServerMessage(protocol.TypeTyping, protocol.ServerTypingMsg{
					IsTyping: ev.IsTyping,
				})
			case engine.PartnerLeft:
				data, err = protocol.NewServerMessage(protocol.TypePartnerLeft, protocol.PartnerLeftMsg{})
			default:
				log.Printf("deliver: unknown notice event %T for %s", n.Event, n.To)
				continue
			}
			if err != nil {
				log.Printf("deliver: marshal for %s: %v", n.To, err)
				continue
			}
			if err := server.SendMessage(n.To, data); err != nil {
				log.Printf("deliver: send to %s: %v", n.To, err)
			}
		}
	}

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// join — declare preferences and enter the matchmaker
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinMsg)
		if !ok {
			return
		}
		markWaiting(conn.ID)
		deliver(eng.Join(conn.ID, engine.Preferences{
			Gender:    joinMsg.Gender,
			Country:   joinMsg.Country,
			Interests: joinMsg.Interests,
			Avatar:    joinMsg.Avatar,
		}))
		log.Printf("join from user=%s country=%s interests=%v", conn.ID, joinMsg.Country, joinMsg.Interests)
	})

	// -----------------------------------------------------------------------
	// message — relay a chat payload within the sender's session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}
		notices := eng.SendMessage(conn.ID, chatMsg.SessionID, chatMsg.Kind, chatMsg.Text, chatMsg.ImageURL)
		if len(notices) > 0 {
			kind := chatMsg.Kind
			if kind != engine.KindImage {
				kind = engine.KindText
			}
			metrics.MessagesTotal.WithLabelValues(kind).Inc()
		}
		deliver(notices)
	})

	// -----------------------------------------------------------------------
	// typing — forward the typing indicator to the partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		deliver(eng.Typing(conn.ID, typingMsg.SessionID, typingMsg.IsTyping))
	})

	// -----------------------------------------------------------------------
	// next — leave the current chat and search again
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeNext, func(conn *ws.Connection, msg interface{}) {
		markWaiting(conn.ID)
		deliver(eng.Next(conn.ID))
		log.Printf("next from user=%s", conn.ID)
	})

	// -----------------------------------------------------------------------
	// toggle_ghost — hide from the matchmaker without leaving the queue
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeToggleGhost, func(conn *ws.Connection, msg interface{}) {
		ghostMsg, ok := msg.(protocol.ToggleGhostMsg)
		if !ok {
			return
		}
		eng.SetGhost(conn.ID, ghostMsg.Enabled)
		log.Printf("toggle_ghost user=%s enabled=%v", conn.ID, ghostMsg.Enabled)
	})

	// -----------------------------------------------------------------------
	// report — append to the moderation log via NATS
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		// The client gets no acknowledgement either way: a reporter must not
		// be able to probe whether a report was accepted.
		rec := eng.Report(conn.ID, reportMsg.ReportedID)
		if rec == nil {
			log.Printf("report dropped: user=%s reported=%s not in a shared session", conn.ID, reportMsg.ReportedID)
			return
		}
		metrics.ReportsTotal.Inc()

		data, err := json.Marshal(report.Record{
			ReporterID: rec.ReporterID,
			ReportedID: rec.ReportedID,
			SessionID:  rec.SessionID,
			CreatedAt:  time.UnixMilli(rec.Ts).UTC(),
		})
		if err != nil {
			log.Printf("report marshal: %v", err)
			return
		}
		if natsClient == nil {
			log.Printf("report (log-only): %s", data)
			return
		}
		if err := natsClient.PublishReport(data); err != nil {
			log.Printf("report publish: %v", err)
		}
	})

	server = ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	server.SetOnConnect(func(connID string) {
		eng.Connect(connID)
		data, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{UserID: connID})
		if err != nil {
			return
		}
		if err := server.SendMessage(connID, data); err != nil {
			log.Printf("connected send to %s: %v", connID, err)
		}
	})

	server.SetOnDisconnect(func(connID string) {
		takeWaiting(connID)
		deliver(eng.Disconnect(connID))
		log.Printf("disconnect cleanup for user=%s", connID)
	})

	server.Handle("/translate", translate.Handler(translator))
	server.Handle("/metrics", metrics.Handler())

	// Export engine occupancy as gauges.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			snap := eng.Snapshot()
			metrics.Connections.Set(float64(snap.Users))
			metrics.WaitingUsers.Set(float64(snap.Waiting))
			metrics.ActiveSessions.Set(float64(snap.Sessions))
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
