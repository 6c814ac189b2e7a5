// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fluffyriot/foodies/internal/blog"
	"github.com/fluffyriot/foodies/internal/cli"
	"github.com/fluffyriot/foodies/internal/config"
	"github.com/fluffyriot/foodies/internal/credstore"
	"github.com/fluffyriot/foodies/internal/devserver"
	"github.com/fluffyriot/foodies/internal/feed"
	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/fluffyriot/foodies/internal/imageenc"
	"github.com/fluffyriot/foodies/internal/session"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	cmd := flag.String("cmd", "feed", "command: feed, more, login, join, logout, mine, post, edit, delete, search, serve")
	email := flag.String("email", "", "account email for login and join")
	name := flag.String("name", "", "display name for join")
	title := flag.String("title", "", "post title")
	content := flag.String("content", "", "post content")
	publish := flag.String("publish", "", "true or false; edit leaves the flag unchanged when empty")
	images := flag.String("images", "", "comma separated image files to attach")
	id := flag.Int("id", 0, "post id for edit and delete")
	pages := flag.Int("pages", 1, "pages to load for feed")
	query := flag.String("query", "", "search text")
	kind := flag.String("type", "post", "search type: post or user")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cmd == "serve" {
		if err := devserver.New(devserver.Config{}).Run(ctx, cfg.DevAddr); err != nil {
			log.Fatalf("Dev server failed: %v", err)
		}
		return
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open credential store: %v", err)
	}

	encoder, err := imageenc.New(cfg.ImageFormat)
	if err != nil {
		log.Fatalf("Invalid image format: %v", err)
	}

	gw := gateway.NewClient(cfg.APIBaseURL(), cfg.Timeout, store, gateway.WithMetrics(gateway.NewMetrics(prometheus.DefaultRegisterer)))
	svc := blog.NewService(gw, encoder, cfg.ImageWidth)

	app := &cli.App{
		Out:          os.Stdout,
		Engine:       feed.NewEngine(svc),
		Blog:         svc,
		Session:      session.NewController(gw, store),
		ReadPassword: cli.TerminalPassword,
	}

	opts := cli.Options{
		Email:   *email,
		Name:    *name,
		Title:   *title,
		Content: *content,
		Publish: *publish,
		Images:  splitList(*images),
		ID:      *id,
		Pages:   *pages,
		Query:   *query,
		Type:    *kind,
	}

	if err := app.Run(ctx, *cmd, opts); err != nil {
		log.Fatalf("%s failed: %v", *cmd, err)
	}
}

func openStore(cfg *config.AppConfig) (credstore.Store, error) {
	if cfg.Secret == "" {
		log.Println("Warning: FOODIES_SECRET is not set, tokens will not outlive this process")
		return credstore.NewMemoryStore(), nil
	}
	return credstore.OpenFileStore(cfg.CredentialsPath, cfg.Secret)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
