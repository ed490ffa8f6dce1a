// Command reindex re-enqueues an embedding job for every stored record.
// Run it after changing the embedding model or recovering a lost vector
// collection; the primary store remains the source of truth and the index
// is rebuilt from it.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"

	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/engine/jobs"
	"github.com/recallhq/recall/pkg/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbPath := envOr("DB_PATH", "recall.db")
	natsURL := envOr("NATS_URL", nats.DefaultURL)

	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.Fatalf("nats connect: %v", err)
	}
	defer nc.Drain()

	queue := jobs.NewQueue(nc)

	total, err := db.Count(ctx)
	if err != nil {
		log.Fatalf("count records: %v", err)
	}
	log.Printf("Reindexing %d records", total)

	const batchSize = 200
	var enqueued, failed int

	for offset := 0; ; offset += batchSize {
		recs, err := db.List(ctx, content.ListFilter{Limit: batchSize, Offset: offset})
		if err != nil {
			log.Fatalf("list records at offset %d: %v", offset, err)
		}
		if len(recs) == 0 {
			break
		}

		for _, rec := range recs {
			if err := queue.Enqueue(ctx, rec.ID, content.Snapshot(rec)); err != nil {
				log.Printf("enqueue %d: %v", rec.ID, err)
				failed++
				continue
			}
			enqueued++
			if enqueued%100 == 0 {
				log.Printf("Progress: %d enqueued, %d failed (of %d)", enqueued, failed, total)
			}
		}

		select {
		case <-ctx.Done():
			log.Printf("Interrupted: %d enqueued, %d failed", enqueued, failed)
			return
		default:
		}
	}

	if err := nc.Flush(); err != nil {
		log.Printf("flush: %v", err)
	}
	log.Printf("Done! Enqueued: %d, Failed: %d, Total: %d", enqueued, failed, total)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
