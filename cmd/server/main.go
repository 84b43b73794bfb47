// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// mailprint — email to printer bridge
//
// Entry point for the print service. It:
//  1. Loads configuration from config.yaml
//  2. Restores the dedup ledger (file or Redis backed)
//  3. Connects the CUPS spooler and, optionally, the Postgres archive
//  4. Polls the IMAP mailbox and prints new messages
//  5. Serves the HTTP control surface
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mailprint/service/internal/api"
	"github.com/mailprint/service/internal/config"
	"github.com/mailprint/service/internal/history"
	"github.com/mailprint/service/internal/jobs"
	"github.com/mailprint/service/internal/layout"
	"github.com/mailprint/service/internal/ledger"
	"github.com/mailprint/service/internal/mail"
	"github.com/mailprint/service/internal/render"
	"github.com/mailprint/service/internal/service"
	"github.com/mailprint/service/internal/spool"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	testPrinter := flag.Bool("test-printer", false, "list available printers and exit")
	testEmail := flag.Bool("test-email", false, "verify the mailbox connection and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailprint service",
		"mailbox", cfg.Email.Username,
		"printer", cfg.Printer.Name,
		"check_interval", cfg.CheckInterval(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Spooler ---
	spooler := spool.NewCUPS(spool.CUPSOptions{
		Printer:   cfg.Printer.Name,
		PaperSize: cfg.Printer.PaperSize,
		Duplex:    cfg.Printer.Duplex,
		Color:     cfg.Printer.Color,
	})

	if *testPrinter {
		runPrinterTest(ctx, spooler)
		return
	}

	// --- Mail Source ---
	source := mail.NewClient(mailOptions(cfg))

	if *testEmail {
		runEmailTest(ctx, source)
		return
	}

	// --- Startup Checks ---
	if err := source.TestConnection(ctx); err != nil {
		slog.Error("mailbox connection check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("mailbox connection verified")

	if printers, err := spooler.Printers(ctx); err != nil {
		slog.Warn("failed to list printers; submissions may fail", "error", err)
	} else {
		slog.Info("spooler reachable", "printers", len(printers))
	}

	// --- Dedup Ledger ---
	store, closeStore, err := ledgerStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	led, err := ledger.New(ctx, cfg.Dedup.Capacity, store)
	if err != nil {
		slog.Error("failed to restore dedup ledger", "error", err)
		os.Exit(1)
	}

	// --- Job Registry ---
	registry := jobs.NewRegistry(jobs.DefaultRegistryCap, spooler)

	// --- Print History (optional) ---
	var hist *history.Store
	if cfg.History.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.History.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		hist, err = history.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise print history store", "error", err)
			os.Exit(1)
		}

		registry.OnTerminal(func(job jobs.Job) {
			rec := history.Record{
				JobHandle:   job.Handle,
				Title:       job.Title,
				State:       job.StateName,
				SubmittedAt: job.SubmittedAt,
			}
			if err := hist.Archive(ctx, rec); err != nil {
				slog.Warn("failed to archive print job", "handle", job.Handle, "error", err)
			}
		})
	}

	// --- Tracker + Renderer ---
	tracker := jobs.NewTracker(spooler, registry, jobs.TrackerOptions{
		WaitForCompletion: cfg.Printer.WaitForCompletion,
		Timeout:           cfg.JobTimeout(),
		PollInterval:      cfg.PollInterval(),
	})

	renderer := render.New(render.Options{
		Profile:          layout.ProfileByName(cfg.Printer.PaperSize),
		ConvertHTMLToPDF: cfg.Processing.ConvertHTMLToPDF,
		MaxPages:         cfg.Processing.MaxPagesPerDocument,
	})

	// --- Service ---
	svc := service.New(source, led, renderer, tracker, registry, service.Options{
		CheckInterval:    cfg.CheckInterval(),
		PrintText:        cfg.Processing.PrintTextEmails,
		PrintHTML:        cfg.Processing.PrintHTMLEmails,
		PrintAttachments: cfg.Processing.PrintAttachments,
	})

	// --- Control Surface ---
	handler := api.NewHandler(registry, spooler, led, hist, cfg.API.APIKey)
	ready, err := api.Serve(ctx, cfg.API.Port, handler)
	if err != nil {
		slog.Error("failed to start control server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Ingestion Loop ---
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig.String())
	cancel()
	<-done

	stats := registry.Stats()
	slog.Info("mailprint service stopped",
		"messages_processed", stats.MessagesProcessed,
		"jobs_succeeded", stats.JobsSucceeded,
		"jobs_failed", stats.JobsFailed,
	)
}

// mailOptions builds the IMAP client options, including the OAuth2
// token source for mailboxes that require it.
func mailOptions(cfg *config.Config) mail.Options {
	opts := mail.Options{
		Server:           cfg.Email.Server,
		Port:             cfg.Email.Port,
		UseSSL:           cfg.Email.UseSSL,
		Username:         cfg.Email.Username,
		Password:         cfg.Email.Password,
		Folder:           cfg.Email.InboxFolder,
		MarkAsRead:       cfg.Email.MarkAsRead,
		DeleteAfterPrint: cfg.Email.DeleteAfterPrint,
		Filters: mail.Filters{
			AllowedSenders:    cfg.Filters.AllowedSenders,
			BlockedSenders:    cfg.Filters.BlockedSenders,
			SubjectKeywords:   cfg.Filters.SubjectKeywords,
			MaxAttachmentSize: cfg.Filters.MaxAttachmentSize,
			AllowedExtensions: cfg.Filters.AllowedAttachments,
		},
	}

	if cfg.Email.Auth == "oauth2" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Email.ClientID,
			ClientSecret: cfg.Email.ClientSecret,
			TokenURL:     cfg.Email.TokenURL,
		}
		opts.TokenSource = creds.TokenSource(context.Background())
	}

	return opts
}

// ledgerStore picks the ledger backend: Redis when configured,
// otherwise the local state file.
func ledgerStore(ctx context.Context, cfg *config.Config) (ledger.Store, func(), error) {
	if cfg.Dedup.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Dedup.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		store, err := ledger.NewRedisStore(ctx, rdb)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		slog.Info("dedup ledger backed by Redis")
		return store, func() { rdb.Close() }, nil
	}

	store, err := ledger.NewFileStore(cfg.Dedup.StateFile)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("dedup ledger backed by state file", "path", cfg.Dedup.StateFile)
	return store, func() {}, nil
}

// runPrinterTest prints the available destinations and exits.
func runPrinterTest(ctx context.Context, spooler *spool.CUPS) {
	printers, err := spooler.Printers(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to list printers:", err)
		os.Exit(1)
	}
	def, err := spooler.DefaultPrinter(ctx)
	if err != nil {
		slog.Warn("failed to query default printer", "error", err)
	}

	if len(printers) == 0 {
		fmt.Println("no printers found")
		return
	}
	fmt.Println("available printers:")
	for _, p := range printers {
		marker := " "
		if p == def {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, p)
	}
}

// runEmailTest verifies the mailbox connection and exits.
func runEmailTest(ctx context.Context, source *mail.Client) {
	if err := source.TestConnection(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "mailbox connection failed:", err)
		os.Exit(1)
	}
	fmt.Println("mailbox connection OK")
}

// logLevel maps the configured level name onto slog.
func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
