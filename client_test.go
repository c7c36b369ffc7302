package chromegcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushRequest struct {
	Authorization string
	ContentType   string
	ContentLength int64
	Body          pushBody
	RawBody       string
}

// pushServer is a fake push endpoint. status maps channel IDs to response
// codes; unknown channels get 204.
type pushServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []pushRequest
}

func newPushServer(t *testing.T, token string, status map[string]int) *pushServer {
	t.Helper()
	ps := &pushServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		raw, err := io.ReadAll(r.Body)
		var body pushBody
		if err == nil {
			err = json.Unmarshal(raw, &body)
		}
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ps.mu.Lock()
		ps.requests = append(ps.requests, pushRequest{
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			ContentLength: r.ContentLength,
			Body:          body,
			RawBody:       string(raw),
		})
		ps.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		if code, ok := status[body.ChannelID]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return ps
}

func (ps *pushServer) Requests() []pushRequest {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]pushRequest(nil), ps.requests...)
}

type outcome struct {
	Success []string
	Failed  []string
}

func outcomeOf(r *Result) outcome {
	return outcome{Success: r.Success(), Failed: r.Failed()}
}

func TestNewWithAccessToken_Defaults(t *testing.T) {
	c := NewWithAccessToken("tok")
	assert.Equal(t, DefaultPushURL, c.pushURL)
	assert.Equal(t, DefaultTokenURL, c.tokenURL)
	assert.Equal(t, "tok", c.AccessToken())
	assert.Zero(t, c.TokenExpiresIn())
}

func TestSend_HappyPath(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewPlainTextMessage("this is plain text message", []string{"chan-1"}, WithSubchannelID(2))
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-1"}, result.Success())
	assert.Empty(t, result.Failed())
	assert.Equal(t, 1, result.Total())

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "Bearer good-token", req.Authorization)
	assert.Equal(t, "application/json", req.ContentType)
	assert.Equal(t, int64(len(req.RawBody)), req.ContentLength)
	assert.Equal(t, pushBody{ChannelID: "chan-1", Payload: "this is plain text message", SubchannelID: 2}, req.Body)
	assert.JSONEq(t, `{"channelId":"chan-1","payload":"this is plain text message","subchannelId":2}`, req.RawBody)
}

func TestSend_PartitionsByStatus(t *testing.T) {
	server := newPushServer(t, "good-token", map[string]int{
		"bad-1": http.StatusBadRequest,
		"bad-2": http.StatusNotFound,
		"bad-3": http.StatusInternalServerError,
		"bad-4": http.StatusOK, // only 204 counts as accepted
	})
	defer server.Close()

	ids := []string{"ok-1", "bad-1", "ok-2", "bad-2", "bad-3", "ok-1", "bad-4"}
	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewPlainTextMessage("hi", ids)
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.NoError(t, err)

	want := outcome{
		Success: []string{"ok-1", "ok-2", "ok-1"},
		Failed:  []string{"bad-1", "bad-2", "bad-3", "bad-4"},
	}
	if diff := cmp.Diff(want, outcomeOf(result)); diff != "" {
		t.Errorf("Send result mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(ids), result.Total())

	var sent []string
	for _, r := range server.Requests() {
		sent = append(sent, r.Body.ChannelID)
	}
	assert.Equal(t, ids, sent, "requests are issued once per channel, in order")
}

func TestSend_JSONMessage(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	content := map[string]any{"title": "this is title", "body": "this is body"}
	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewJSONMessage(content, []string{"chan-1", "chan-2"})
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-1", "chan-2"}, result.Success())

	for _, r := range server.Requests() {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.Body.Payload), &decoded))
		assert.Equal(t, content, decoded)
		assert.Equal(t, 0, r.Body.SubchannelID)
	}
}

func TestSend_TruncatesPayload(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewPlainTextMessage(strings.Repeat("a", 200), []string{"chan-1"},
		WithOptionMap(map[string]any{"message_length": 50}))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), msg)
	require.NoError(t, err)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, strings.Repeat("a", 50), reqs[0].Body.Payload)
}

func TestSend_InvalidTokenIsAuthenticationError(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	c := NewWithAccessToken("123", WithPushURL(server.URL))

	text, err := NewPlainTextMessage("text", []string{"chan-1", "chan-2"})
	require.NoError(t, err)
	jsonMsg, err := NewJSONMessage(map[string]string{"title": "t"}, []string{"chan-1"})
	require.NoError(t, err)

	for _, msg := range []*Message{text, jsonMsg} {
		result, err := c.Send(context.Background(), msg)
		require.ErrorIs(t, err, ErrAuthentication)
		assert.Nil(t, result)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "Invalid Credentials")
	}
}

func TestSend_AuthenticationErrorAbortsRemainingChannels(t *testing.T) {
	server := newPushServer(t, "good-token", map[string]int{
		"revoked": http.StatusUnauthorized,
		"bad":     http.StatusBadRequest,
	})
	defer server.Close()

	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewPlainTextMessage("hi", []string{"ok", "bad", "revoked", "never-1", "never-2"})
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Nil(t, result, "no partial result on authentication failure")
	assert.Len(t, server.Requests(), 3)
}

func TestSend_NoChannels(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	for _, ids := range [][]string{nil, {}} {
		msg, err := NewPlainTextMessage("hi", ids)
		require.NoError(t, err)

		result, err := c.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.NotNil(t, result.Success())
		assert.NotNil(t, result.Failed())
		assert.Zero(t, result.Total())
	}
	assert.Empty(t, server.Requests())
}

func TestSend_NilMessage(t *testing.T) {
	c := NewWithAccessToken("good-token")
	result, err := c.Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, result)
}

func TestSend_TransportErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	pushURL := server.URL
	server.Close()

	c := NewWithAccessToken("good-token", WithPushURL(pushURL))
	msg, err := NewPlainTextMessage("hi", []string{"chan-1"})
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), "POST "+pushURL)
}

func TestSend_CanceledContext(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewPlainTextMessage("hi", []string{"chan-1"})
	require.NoError(t, err)

	_, err = c.Send(ctx, msg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, server.Requests())
}

func TestSend_LogsRedactToken(t *testing.T) {
	server := newPushServer(t, "very-secret-access-token", nil)
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := NewWithAccessToken("very-secret-access-token", WithPushURL(server.URL), WithLogger(logger))
	msg, err := NewPlainTextMessage("hi", []string{"chan-1"})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), msg)
	require.NoError(t, err)

	logs := buf.String()
	assert.NotContains(t, logs, "very-secret-access-token")
	assert.Contains(t, logs, `headers.Authorization="Bearer very-sec..."`)
	assert.Contains(t, logs, "headers.Content-Type=application/json")
	assert.Contains(t, logs, "send_id=")
	assert.Contains(t, logs, "status="+strconv.Itoa(http.StatusNoContent))
}

func TestSend_LogsTruncatedErrorBody(t *testing.T) {
	long := strings.Repeat("x", 2*maxLoggedBody) + "tail-marker"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(long))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := NewWithAccessToken("good-token", WithPushURL(server.URL), WithLogger(logger))
	msg, err := NewPlainTextMessage("hi", []string{"chan-1"})
	require.NoError(t, err)

	result, err := c.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-1"}, result.Failed())

	logs := buf.String()
	assert.Contains(t, logs, "body="+strings.Repeat("x", maxLoggedBody))
	assert.NotContains(t, logs, strings.Repeat("x", maxLoggedBody+1))
	assert.NotContains(t, logs, "tail-marker")
	assert.Contains(t, logs, "length="+strconv.Itoa(len(long)))
}

func TestSend_SuccessBodyNotLogged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := NewWithAccessToken("good-token", WithPushURL(server.URL), WithLogger(logger))
	msg, err := NewPlainTextMessage("hi", []string{"chan-1"})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), msg)
	require.NoError(t, err)

	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "<<< Response") {
			assert.NotContains(t, line, "body=")
		}
	}
}

func TestRedactAuthorization(t *testing.T) {
	assert.Equal(t, "Bearer ya29.abc...", redactAuthorization("Bearer ya29.abcdefghijkl"))
	assert.Equal(t, "Bearer short", redactAuthorization("Bearer short"))
	assert.Equal(t, "noscheme...", redactAuthorization("noschemetoken"))
}

func TestSend_JSONContentChangedAfterConstruction(t *testing.T) {
	server := newPushServer(t, "good-token", nil)
	defer server.Close()

	content := map[string]any{"title": "t"}
	c := NewWithAccessToken("good-token", WithPushURL(server.URL))
	msg, err := NewJSONMessage(content, []string{"chan-1"})
	require.NoError(t, err)

	content["title"] = "changed"
	content["ch"] = make(chan int)

	result, err := c.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-1"}, result.Success())

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, `{"title":"t"}`, reqs[0].Body.Payload)
}
