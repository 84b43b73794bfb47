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

// Package service wires the mailbox poller to the print pipeline: fetch
// unseen mail, gate each message through the dedup ledger, render its
// printable parts, and follow each print job to completion.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailprint/service/internal/jobs"
	"github.com/mailprint/service/internal/ledger"
	"github.com/mailprint/service/internal/mail"
	"github.com/mailprint/service/internal/render"
)

// MailSource delivers inbound messages and acknowledges their
// consumption. Satisfied by mail.Client.
type MailSource interface {
	FetchNew(ctx context.Context) ([]mail.Message, error)
	MarkConsumed(ctx context.Context, messageID string) error
}

// Options configures a Service.
type Options struct {
	// CheckInterval is the mailbox poll period.
	CheckInterval time.Duration

	// PrintText, PrintHTML and PrintAttachments gate each content kind.
	// Leaving all three unset enables everything.
	PrintText        bool
	PrintHTML        bool
	PrintAttachments bool
}

// Service runs the ingestion loop. A single goroutine owns the whole
// fetch-render-print cycle; the control surface reads the registry
// concurrently but never drives the pipeline.
type Service struct {
	source   MailSource
	ledger   *ledger.Ledger
	renderer *render.Renderer
	tracker  *jobs.Tracker
	registry *jobs.Registry
	opts     Options
}

// New creates a service.
func New(source MailSource, led *ledger.Ledger, renderer *render.Renderer, tracker *jobs.Tracker, registry *jobs.Registry, opts Options) *Service {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 60 * time.Second
	}
	if !opts.PrintText && !opts.PrintHTML && !opts.PrintAttachments {
		opts.PrintText = true
		opts.PrintHTML = true
		opts.PrintAttachments = true
	}
	return &Service{
		source:   source,
		ledger:   led,
		renderer: renderer,
		tracker:  tracker,
		registry: registry,
		opts:     opts,
	}
}

// Run polls the mailbox until the context is cancelled. The first poll
// happens immediately; failures are logged and retried on the next
// tick.
func (s *Service) Run(ctx context.Context) {
	slog.Info("ingestion loop started", "check_interval", s.opts.CheckInterval)

	if err := s.IngestOnce(ctx); err != nil {
		slog.Error("ingestion cycle failed", "error", err)
	}

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ingestion loop stopped")
			return
		case <-ticker.C:
			if err := s.IngestOnce(ctx); err != nil {
				slog.Error("ingestion cycle failed", "error", err)
			}
		}
	}
}

// IngestOnce runs one fetch-and-print cycle.
func (s *Service) IngestOnce(ctx context.Context) error {
	messages, err := s.source.FetchNew(ctx)
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	slog.Info("fetched new messages", "count", len(messages))

	for i := range messages {
		s.processMessage(ctx, &messages[i])
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// processMessage prints one message's parts. The ledger records the
// dispatch before the message is marked consumed, so a crash between
// the two skips the message rather than printing it twice.
func (s *Service) processMessage(ctx context.Context, msg *mail.Message) {
	log := slog.With("message_id", msg.ID, "sender", msg.Sender, "subject", msg.Subject)

	if !s.ledger.ShouldDispatch(ctx, msg.ID) {
		log.Debug("duplicate message skipped")
		// Already printed once; just stop the redeliveries.
		s.markConsumed(ctx, msg.ID, log)
		return
	}

	submitted, rejected := s.printParts(ctx, msg, log)
	if submitted == 0 && rejected > 0 {
		// The spooler turned away every part that rendered — a device
		// condition that may clear. Withdraw the dispatch record and
		// leave the message unconsumed so a later delivery retries.
		s.ledger.Forget(ctx, msg.ID)
		log.Warn("spooler rejected every part, leaving message for retry")
		return
	}
	if submitted == 0 {
		// Every part failed deterministically (unrenderable, over the
		// page cap, or nothing printable). Retrying would fail the same
		// way forever, so the dispatch record stands and the message is
		// consumed.
		log.Warn("message had no printable parts")
	}

	s.registry.NoteMessageProcessed()
	s.markConsumed(ctx, msg.ID, log)
}

// printParts renders and submits each printable part, isolating part
// failures from each other. Returns how many parts the spooler
// accepted and how many it rejected. A part that fails to render
// counts in neither: render failures are deterministic, so they are
// dropped rather than retried.
func (s *Service) printParts(ctx context.Context, msg *mail.Message, log *slog.Logger) (submitted, rejected int) {
	if s.opts.PrintAttachments && len(msg.Attachments) > 0 {
		// Attachments are the payload; the body is treated as cover
		// text and skipped.
		for _, att := range msg.Attachments {
			doc, err := s.renderer.RenderAttachment(ctx, att.Filename, att.MIMEType, att.Data)
			if err != nil {
				log.Error("failed to render attachment", "attachment", att.Filename, "error", err)
				continue
			}
			if s.submit(ctx, doc, log) {
				submitted++
			} else {
				rejected++
			}
		}
		return submitted, rejected
	}

	doc, err := s.renderBody(ctx, msg)
	if err != nil {
		log.Error("failed to render message body", "error", err)
		return 0, 0
	}
	if doc == nil {
		log.Info("message has no printable content")
		return 0, 0
	}
	if s.submit(ctx, doc, log) {
		submitted++
	} else {
		rejected++
	}
	return submitted, rejected
}

// renderBody renders the message body with its header preamble, HTML
// preferred. Returns (nil, nil) for an empty message.
func (s *Service) renderBody(ctx context.Context, msg *mail.Message) (*render.Document, error) {
	title := msg.Subject
	if title == "" {
		title = "Message " + msg.ID
	}

	if s.opts.PrintHTML && msg.HTMLBody != "" {
		html := "<pre>" + msg.HeaderBlock() + "</pre>\n" + msg.HTMLBody
		return s.renderer.RenderHTML(ctx, title, html)
	}
	if s.opts.PrintText && msg.TextBody != "" {
		return s.renderer.RenderText(title, msg.HeaderBlock()+msg.TextBody)
	}
	return nil, nil
}

// submit hands one document to the tracker and reports whether the
// spooler accepted it. The tracker owns the document's release.
func (s *Service) submit(ctx context.Context, doc *render.Document, log *slog.Logger) bool {
	handle, state, err := s.tracker.SubmitAndAwait(ctx, doc)
	if err != nil {
		if handle == "" {
			log.Error("print submission rejected", "title", doc.Title, "error", err)
			return false
		}
		// Submitted but never confirmed terminal: the job may still
		// print, so the part counts as dispatched.
		log.Warn("print job outcome unknown", "handle", handle, "title", doc.Title, "error", err)
		return true
	}

	log.Info("print job dispatched", "handle", handle, "title", doc.Title, "state", state.String())
	return true
}

// markConsumed acknowledges the message at the provider. Failures are
// logged only: the ledger already guards against a reprint when the
// provider redelivers.
func (s *Service) markConsumed(ctx context.Context, messageID string, log *slog.Logger) {
	if err := s.source.MarkConsumed(ctx, messageID); err != nil {
		log.Warn("failed to mark message consumed", "error", err)
	}
}
