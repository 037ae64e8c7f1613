// Command loadgen opens a swarm of WebSocket clients against a running
// broker and measures what comes back. Handy for sizing buffer and queue
// settings before a deploy.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr      string        `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	Rooms           int           `envconfig:"ROOMS" default:"4"`
	Clients         int           `envconfig:"CLIENTS" default:"20"`
	MessageInterval time.Duration `envconfig:"MESSAGE_INTERVAL" default:"500ms"`
	Duration        time.Duration `envconfig:"DURATION" default:"30s"`
}

type counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
	errors   atomic.Uint64
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	color.Cyan.Printf("Starting %d clients over %d rooms against %s for %v\n",
		cfg.Clients, cfg.Rooms, cfg.ServerAddr, cfg.Duration)

	var stats counters
	var wg sync.WaitGroup
	deadline := time.Now().Add(cfg.Duration)

	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			room := fmt.Sprintf("load-%d", id%cfg.Rooms)
			if err := runClient(cfg, id, room, deadline, &stats); err != nil {
				stats.errors.Add(1)
				log.Printf("client %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	color.Green.Printf("\nSent %d, received %d, errors %d\n",
		stats.sent.Load(), stats.received.Load(), stats.errors.Load())
}

// runClient obtains a guest token, joins its room and chats until the
// deadline.
func runClient(cfg Config, id int, room string, deadline time.Time, stats *counters) error {
	token, err := fetchToken(cfg.ServerAddr, fmt.Sprintf("loadgen-%d", id))
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	u := url.URL{Scheme: "ws", Host: cfg.ServerAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Drain server frames so the send queue on the broker side never
	// fills up because of us.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			stats.received.Add(1)
		}
	}()

	join := map[string]string{"op": "join", "room": room}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	ticker := time.NewTicker(cfg.MessageInterval)
	defer ticker.Stop()
	seq := 0
	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		seq++
		send := map[string]string{"op": "send", "room": room, "body": fmt.Sprintf("ping %d from client %d", seq, id)}
		if err := conn.WriteJSON(send); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		stats.sent.Add(1)
	}

	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func fetchToken(addr, alias string) (string, error) {
	body, _ := json.Marshal(map[string]string{"alias": alias})
	resp, err := http.Post(fmt.Sprintf("http://%s/token", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}
