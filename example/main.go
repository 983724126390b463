package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/client"
	"github.com/meikuraledutech/pipegraph/editor"
	"github.com/meikuraledutech/pipegraph/logging"
)

func main() {
	ctx := context.Background()

	baseURL := os.Getenv("PIPEGRAPH_BACKEND_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Talk to a running server through the same Backend interface the
	// server implements.
	var opts []client.Option
	if tok := os.Getenv("PIPEGRAPH_BACKEND_TOKEN"); tok != "" {
		opts = append(opts, client.WithStaticToken(tok, ""))
	}
	var backend pipegraph.Backend = client.New(baseURL, opts...)

	s := editor.NewSession(backend, catalog.Default(), 1, logging.New("info", "text", os.Stderr), nil)

	// 1. Load whatever is already published
	if err := s.Load(ctx); err != nil {
		log.Fatalf("load: %v", err)
	}
	fmt.Println("graph loaded")
	printJSON(s.Store().Snapshot())

	// ── Build sqlite → relay → two destinations ───────────────────────
	src, err := s.Drop(catalog.SQLite, pipegraph.Position{X: 0, Y: 0})
	if err != nil {
		log.Fatalf("drop: %v", err)
	}
	s.SetField(src.ID, "path", "/tmp/example.db")

	relay, _ := s.Drop(catalog.MycelialNet, pipegraph.Position{X: 280, Y: 0})
	s.SetField(relay.ID, "topic", "example")

	hello, _ := s.Drop(catalog.HelloWorld, pipegraph.Position{X: 560, Y: 0})
	file, _ := s.Drop(catalog.File, pipegraph.Position{X: 560, Y: 140})
	s.SetField(file.ID, "path", "/tmp/example.out")

	st := s.Store()
	st.Connect(src.ID, relay.ID)
	st.Connect(relay.ID, hello.ID)
	st.Connect(relay.ID, file.ID)

	// ── Publish: three pipes are created ──────────────────────────────
	report, err := s.Publish(ctx)
	if err != nil {
		log.Fatalf("publish: %v", err)
	}
	fmt.Println("\npublished:")
	printJSON(report.Paths)

	// ── Remove one destination and publish again ─────────────────────
	st.MarkNodeDeleted(file.ID)
	fmt.Printf("\npending deletions: %v\n", st.PendingDeletions())

	report, err = s.Publish(ctx)
	if err != nil {
		log.Fatalf("publish: %v", err)
	}
	fmt.Printf("deleted: %v\n", report.Deleted)

	// ── Reload: ids are stable ────────────────────────────────────────
	if err := s.Load(ctx); err != nil {
		log.Fatalf("reload: %v", err)
	}
	fmt.Println("\ngraph after reload:")
	printJSON(s.Store().Snapshot())
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
