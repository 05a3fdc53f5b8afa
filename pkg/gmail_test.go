package pkg

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGmail serves the Gmail list/get endpoints and the OAuth token endpoint.
// Only validToken is accepted by the API.
type fakeGmail struct {
	validToken string
	refreshes  atomic.Int32
	lists      atomic.Int32
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/token":
		f.refreshes.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
		return
	case r.Header.Get("Authorization") != "Bearer "+f.validToken:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
		return
	case r.URL.Path == "/gmail/v1/users/me/messages":
		f.lists.Add(1)
		if r.URL.Query().Get("q") != unreadQuery || r.URL.Query().Get("labelIds") != inboxLabel {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"resultSizeEstimate":2}`)
	case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		_, _ = io.WriteString(w, `{"id":"`+id+`","snippet":"snippet `+id+`","payload":{"headers":[
			{"name":"Subject","value":"Subject `+id+`"},{"name":"From","value":"a@b.c"}]}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestInbox(server *httptest.Server) *GmailInbox {
	return &GmailInbox{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/token",
		Endpoint:     server.URL + "/",
		HTTPClient:   server.Client(),
	}
}

func TestGmailInbox_ListUnseen(t *testing.T) {
	fake := &fakeGmail{validToken: "good"}
	server := httptest.NewServer(fake)
	defer server.Close()

	messages, err := newTestInbox(server).ListUnseen(context.Background(), InboxCredentials{AccessToken: "good"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []InboxMessage{
		{ID: "m1", Subject: "Subject m1", From: "a@b.c", Snippet: "snippet m1"},
		{ID: "m2", Subject: "Subject m2", From: "a@b.c", Snippet: "snippet m2"},
	}, messages)
	assert.Equal(t, int32(0), fake.refreshes.Load())
}

func TestGmailInbox_RefreshesOnceOn401(t *testing.T) {
	fake := &fakeGmail{validToken: "fresh"}
	server := httptest.NewServer(fake)
	defer server.Close()

	var persisted string
	messages, err := newTestInbox(server).ListUnseen(context.Background(),
		InboxCredentials{AccessToken: "stale", RefreshToken: "refresh-1"},
		func(_ context.Context, token string) error {
			persisted = token
			return nil
		})

	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "fresh", persisted)
	assert.Equal(t, int32(1), fake.refreshes.Load())
	assert.Equal(t, int32(1), fake.lists.Load())
}

func TestGmailInbox_ExpiredWithoutRefreshToken(t *testing.T) {
	server := httptest.NewServer(&fakeGmail{validToken: "fresh"})
	defer server.Close()

	_, err := newTestInbox(server).ListUnseen(context.Background(), InboxCredentials{AccessToken: "stale"}, nil)

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.EqualError(t, err, "access expired and no refresh token available")
}

func TestGmailInbox_StillUnauthorizedAfterRefresh(t *testing.T) {
	fake := &fakeGmail{validToken: "never"}
	server := httptest.NewServer(fake)
	defer server.Close()

	_, err := newTestInbox(server).ListUnseen(context.Background(),
		InboxCredentials{AccessToken: "stale", RefreshToken: "refresh-1"}, nil)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Equal(t, int32(1), fake.refreshes.Load(), "refresh happens only once")
}

func TestGmailInbox_RefreshRejected(t *testing.T) {
	server := httptest.NewServer(&fakeGmail{validToken: "fresh"})
	defer server.Close()

	_, err := newTestInbox(server).ListUnseen(context.Background(),
		InboxCredentials{AccessToken: "stale", RefreshToken: "revoked"}, nil)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
}
