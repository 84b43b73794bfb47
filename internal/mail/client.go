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

package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// Options configures the IMAP client.
type Options struct {
	Server   string
	Port     int
	UseSSL   bool
	Username string
	Password string

	// TokenSource, when set, authenticates with SASL OAUTHBEARER
	// instead of LOGIN.
	TokenSource oauth2.TokenSource

	Folder           string
	MarkAsRead       bool
	DeleteAfterPrint bool
	Filters          Filters
}

// Client pulls inbound messages from an IMAP mailbox. Connections are
// short-lived: each operation dials, works, and logs out.
type Client struct {
	opts Options

	// uidByID maps Message-IDs from the latest fetch to mailbox UIDs so
	// MarkConsumed can address the right message later in the cycle.
	mu      sync.Mutex
	uidByID map[string]imap.UID
}

// NewClient creates an IMAP mail source.
func NewClient(opts Options) *Client {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	return &Client{
		opts:    opts,
		uidByID: make(map[string]imap.UID),
	}
}

// connect dials the server and authenticates. The caller is responsible
// for Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.opts.Server, c.opts.Port)

	var client *imapclient.Client
	var err error
	if c.opts.UseSSL {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if c.opts.TokenSource != nil {
		tok, err := c.opts.TokenSource.Token()
		if err != nil {
			_ = client.Logout().Wait()
			return nil, fmt.Errorf("obtaining OAuth2 token: %w", err)
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.opts.Username,
			Token:    tok.AccessToken,
			Host:     c.opts.Server,
			Port:     c.opts.Port,
		})
		if err := client.Authenticate(saslClient); err != nil {
			_ = client.Logout().Wait()
			return nil, fmt.Errorf("OAUTHBEARER authentication failed for %s: %w", c.opts.Username, err)
		}
	} else {
		if err := client.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
			_ = client.Logout().Wait()
			return nil, fmt.Errorf("authentication failed for %s: %w", c.opts.Username, err)
		}
	}

	return client, nil
}

// TestConnection dials, authenticates and disconnects.
func (c *Client) TestConnection(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.Logout().Wait()
}

// FetchNew returns the unseen messages in the configured folder that
// pass the message filters. Bodies are fetched with BODY.PEEK so the
// fetch itself leaves the seen flag untouched.
func (c *Client) FetchNew(ctx context.Context) ([]Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(c.opts.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", c.opts.Folder, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)

	var messages []Message
	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			slog.Warn("failed to collect message data", "error", err)
			continue
		}

		msg := c.messageFromBuffer(buf, bodySection)
		if msg == nil {
			continue
		}
		if !c.opts.Filters.AcceptMessage(msg) {
			slog.Debug("message filtered out", "message_id", msg.ID, "sender", msg.Sender)
			continue
		}

		c.mu.Lock()
		c.uidByID[msg.ID] = buf.UID
		c.mu.Unlock()

		messages = append(messages, *msg)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}

	return messages, nil
}

// MarkConsumed flags the message seen (and deleted, when configured) so
// the provider stops redelivering it. Must only be called after the
// dedup ledger has recorded the dispatch.
func (c *Client) MarkConsumed(ctx context.Context, messageID string) error {
	c.mu.Lock()
	uid, ok := c.uidByID[messageID]
	if ok {
		delete(c.uidByID, messageID)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no mailbox UID known for message %s", messageID)
	}

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(c.opts.Folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", c.opts.Folder, err)
	}

	uidSet := imap.UIDSetNum(uid)

	flags := []imap.Flag{}
	if c.opts.MarkAsRead {
		flags = append(flags, imap.FlagSeen)
	}
	if c.opts.DeleteAfterPrint {
		flags = append(flags, imap.FlagDeleted)
	}
	if len(flags) == 0 {
		return nil
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  flags,
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing flags on message %s: %w", messageID, err)
	}

	if c.opts.DeleteAfterPrint {
		if err := client.Expunge().Close(); err != nil {
			return fmt.Errorf("expunging deleted messages: %w", err)
		}
	}

	return nil
}

// messageFromBuffer decodes one fetched message. Returns nil when the
// buffer carries no usable body.
func (c *Client) messageFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) *Message {
	msg := &Message{}

	if buf.Envelope != nil {
		msg.ID = buf.Envelope.MessageID
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			msg.Sender = buf.Envelope.From[0].Addr()
		}
		if len(buf.Envelope.To) > 0 {
			msg.Recipient = buf.Envelope.To[0].Addr()
		}
	}
	if msg.ID == "" {
		// Rare, but a message without a Message-ID still needs a stable
		// identity for the dedup ledger.
		msg.ID = fmt.Sprintf("uid-%d@%s/%s", buf.UID, c.opts.Server, c.opts.Folder)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		slog.Warn("message fetched without body section", "message_id", msg.ID)
		return nil
	}

	c.parseBody(msg, raw)
	return msg
}

// parseBody walks the MIME structure and fills in bodies and
// attachments, applying the per-attachment filters.
func (c *Client) parseBody(msg *Message, raw []byte) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not MIME; treat the payload as plain text.
		msg.TextBody = string(raw)
		return
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("failed to read message part", "message_id", msg.ID, "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				msg.TextBody += string(body)
			case strings.HasPrefix(contentType, "text/html"):
				msg.HTMLBody += string(body)
			}

		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				slog.Warn("failed to read attachment", "message_id", msg.ID, "attachment", filename, "error", readErr)
				continue
			}

			att := Attachment{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(body)),
				Data:     body,
			}
			if !c.opts.Filters.AcceptAttachment(&att) {
				slog.Info("attachment filtered out",
					"message_id", msg.ID,
					"attachment", filename,
					"size", att.Size,
				)
				continue
			}
			msg.Attachments = append(msg.Attachments, att)
		}
	}
}
