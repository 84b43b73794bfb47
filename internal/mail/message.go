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

// Package mail fetches inbound messages over IMAP and decodes them into
// the structures the print pipeline consumes. Messages are fetched with
// BODY.PEEK so nothing is marked seen until the dedup ledger has
// recorded the dispatch.
package mail

import (
	"path/filepath"
	"strings"
	"time"
)

// Attachment is a named message part with its payload.
type Attachment struct {
	Filename string
	MIMEType string
	Size     int64
	Data     []byte
}

// Message is a fully decoded inbound email. Immutable once delivered;
// the pipeline only reads it and records its identifier.
type Message struct {
	// ID is the provider-assigned Message-ID header, stable across
	// redeliveries of the same message.
	ID          string
	Sender      string
	Recipient   string
	Subject     string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// HeaderBlock renders the From/To/Subject/Date preamble printed above
// message bodies.
func (m *Message) HeaderBlock() string {
	var b strings.Builder
	b.WriteString("From: " + m.Sender + "\n")
	b.WriteString("To: " + m.Recipient + "\n")
	b.WriteString("Subject: " + m.Subject + "\n")
	b.WriteString("Date: " + m.Date.Format(time.RFC1123Z) + "\n\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	return b.String()
}

// Filters controls which messages and attachments enter the pipeline.
type Filters struct {
	// AllowedSenders, when non-empty, restricts processing to matching
	// senders. BlockedSenders always wins over an allow match.
	AllowedSenders []string
	BlockedSenders []string

	// SubjectKeywords, when non-empty, requires at least one keyword in
	// the subject.
	SubjectKeywords []string

	// MaxAttachmentSize drops oversized attachments. Zero disables the
	// check.
	MaxAttachmentSize int64

	// AllowedExtensions, when non-empty, drops attachments with other
	// file extensions.
	AllowedExtensions []string
}

// AcceptMessage decides whether a message enters the pipeline at all.
func (f *Filters) AcceptMessage(m *Message) bool {
	sender := strings.ToLower(m.Sender)

	for _, blocked := range f.BlockedSenders {
		if strings.Contains(sender, strings.ToLower(blocked)) {
			return false
		}
	}

	if len(f.AllowedSenders) > 0 {
		allowed := false
		for _, a := range f.AllowedSenders {
			if strings.Contains(sender, strings.ToLower(a)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(f.SubjectKeywords) > 0 {
		subject := strings.ToLower(m.Subject)
		match := false
		for _, kw := range f.SubjectKeywords {
			if strings.Contains(subject, strings.ToLower(kw)) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}

// AcceptAttachment decides whether one attachment is printable. A
// rejected attachment is dropped on its own; it never blocks the
// message's other parts.
func (f *Filters) AcceptAttachment(a *Attachment) bool {
	if f.MaxAttachmentSize > 0 && a.Size > f.MaxAttachmentSize {
		return false
	}

	if len(f.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(a.Filename))
		for _, allowed := range f.AllowedExtensions {
			if ext == strings.ToLower(allowed) {
				return true
			}
		}
		return false
	}

	return true
}
