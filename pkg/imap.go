package pkg

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const (
	imapSnippetSize = 200
	imapLookback    = 3 * 24 * time.Hour
)

// IMAPAccount is a mailbox reachable over IMAP.
type IMAPAccount struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// IMAPInbox lists unread messages of an IMAP mailbox without marking them as
// read.
type IMAPInbox struct{}

// ListUnseen returns the unseen INBOX messages received in the last three
// days.
func (slf *IMAPInbox) ListUnseen(ctx context.Context, account IMAPAccount) ([]InboxMessage, error) {
	addr := fmt.Sprintf("%s:%d", account.Host, account.Port)

	var client *imapclient.Client
	var err error
	if account.UseTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: account.Host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("IMAP connection failed: %w", err)
	}
	defer client.Close()

	// the imap client has no context support, closing the connection unblocks
	// pending commands
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}

	search, err := client.UIDSearch(UnseenCriteria(time.Now()), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}
	uids := search.AllUIDs()
	if len(uids) == 0 {
		_ = client.Logout().Wait()
		return []InboxMessage{}, nil
	}

	section := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierText,
		Peek:      true,
		Partial:   &imap.SectionPartial{Offset: 0, Size: imapSnippetSize},
	}
	fetched, err := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	out := make([]InboxMessage, 0, len(fetched))
	for _, msg := range fetched {
		item := InboxMessage{
			ID:      fmt.Sprintf("%d", msg.UID),
			Snippet: Snippet(string(msg.FindBodySection(section))),
		}
		if msg.Envelope != nil {
			item.Subject = msg.Envelope.Subject
			if len(msg.Envelope.From) > 0 {
				item.From = msg.Envelope.From[0].Addr()
			}
		}
		out = append(out, item)
	}

	_ = client.Logout().Wait()
	return out, nil
}

// UnseenCriteria matches messages without the \Seen flag received since the
// lookback window before now.
func UnseenCriteria(now time.Time) *imap.SearchCriteria {
	return &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   now.Add(-imapLookback),
	}
}

// Snippet collapses whitespace of a body excerpt.
func Snippet(body string) string {
	return strings.Join(strings.Fields(body), " ")
}
