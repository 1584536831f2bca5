package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classtrack/internal/config"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

// Worker drains record-change events from the queue and relays each one to
// the configured webhook sink. Delivery is best-effort: a failed POST is
// logged and the event is dropped, never retried into the hot path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		log.Println("warning: memory queue backend, worker sees no api events")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:events")
	}

	if cfg.WebhookURL == "" {
		log.Println("WEBHOOK_URL not set, events will be logged and dropped")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for msg := range messages {
		if cfg.WebhookURL == "" {
			log.Printf("event %s: %s", msg.Event, msg.Body)
			continue
		}
		if err := relay(ctx, client, cfg.WebhookURL, msg); err != nil {
			log.Printf("relay %s failed: %v", msg.Event, err)
			continue
		}
		log.Printf("relayed %s", msg.Event)
	}
	log.Println("worker stopped")
}

func relay(ctx context.Context, client *http.Client, url string, msg queue.Message) error {
	envelope, err := json.Marshal(map[string]any{
		"event":     msg.Event,
		"payload":   json.RawMessage(msg.Body),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("webhook returned %d for %s", resp.StatusCode, msg.Event)
	}
	return nil
}
