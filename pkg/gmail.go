package pkg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	GoogleTokenURL = "https://oauth2.googleapis.com/token"

	unreadQuery        = "is:unread newer_than:3d"
	inboxLabel         = "INBOX"
	maxParallelFetches = 8
)

// InboxMessage is the metadata of one unread email.
type InboxMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Snippet string `json:"snippet"`
}

// InboxCredentials are the decrypted tokens of a mailbox connection.
type InboxCredentials struct {
	AccessToken  string
	RefreshToken string
}

// TokenRefreshed is called with the new access token after a refresh so the
// caller can persist it.
type TokenRefreshed func(ctx context.Context, accessToken string) error

// GmailInbox lists unread messages through the Gmail API.
type GmailInbox struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to GoogleTokenURL.
	TokenURL string
	// Endpoint overrides the Gmail API base URL.
	Endpoint   string
	HTTPClient *http.Client
}

// ListUnseen returns the unread inbox messages of the last three days. When
// the access token is rejected it is refreshed once, reported through
// onRefresh, and the listing is retried.
func (slf *GmailInbox) ListUnseen(ctx context.Context, creds InboxCredentials, onRefresh TokenRefreshed) ([]InboxMessage, error) {
	messages, err := slf.list(ctx, creds.AccessToken)
	if err == nil || !isUnauthorized(err) {
		return messages, gmailError(err)
	}

	if creds.RefreshToken == "" {
		return nil, ErrTokenExpired
	}
	accessToken, err := slf.refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, err
	}
	if onRefresh != nil {
		if err := onRefresh(ctx, accessToken); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}
	messages, err = slf.list(ctx, accessToken)
	return messages, gmailError(err)
}

func (slf *GmailInbox) oauthContext(ctx context.Context) context.Context {
	if slf.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, slf.HTTPClient)
}

func (slf *GmailInbox) refresh(ctx context.Context, refreshToken string) (string, error) {
	tokenURL := slf.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     slf.ClientID,
		ClientSecret: slf.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	token, err := cfg.TokenSource(slf.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &UpstreamError{Provider: "Google OAuth", StatusCode: retrieveErr.Response.StatusCode, Body: string(retrieveErr.Body)}
		}
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	return token.AccessToken, nil
}

func (slf *GmailInbox) list(ctx context.Context, accessToken string) ([]InboxMessage, error) {
	httpClient := oauth2.NewClient(slf.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if slf.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(slf.Endpoint))
	}
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	list, err := srv.Users.Messages.List("me").Q(unreadQuery).LabelIds(inboxLabel).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	out := make([]InboxMessage, len(list.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, ref := range list.Messages {
		g.Go(func() error {
			msg, err := srv.Users.Messages.Get("me", ref.Id).
				Format("metadata").
				MetadataHeaders("Subject", "From").
				Context(gctx).
				Do()
			if err != nil {
				return err
			}
			out[i] = InboxMessage{
				ID:      msg.Id,
				Subject: messageHeader(msg.Payload, "Subject"),
				From:    messageHeader(msg.Payload, "From"),
				Snippet: msg.Snippet,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func messageHeader(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// gmailError converts Gmail API failures into UpstreamError.
func gmailError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: "Gmail", StatusCode: apiErr.Code, Body: apiErr.Body}
	}
	return err
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}
