package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adjustmentCommand() Command {
	return Command{
		ID:        "cmd-1",
		Namespace: "folio",
		Method:    "postAdjustment",
		Path:      "/api/folios/f-1/adjustments",
		EntityIDs: map[string]string{"folio_id": "f-1"},
		Payload:   json.RawMessage(`{"action_type":"write_off","amount":5000}`),
	}
}

func localServer(t *testing.T, handler http.HandlerFunc) *LocalExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLocalExecutor(srv.URL, srv.Client(), time.Minute)
}

type remoteCall struct {
	path, auth, key string
	body            string
}

type remoteCalls struct {
	mu    sync.Mutex
	calls []remoteCall
}

func (c *remoteCalls) list() []remoteCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remoteCall(nil), c.calls...)
}

func remoteServer(t *testing.T, rec *remoteCalls, status int, body string) *RemoteExecutor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.calls = append(rec.calls, remoteCall{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			key:  r.Header.Get("Idempotency-Key"),
			body: string(raw),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewRemoteExecutor(srv.URL, "tok", time.Second)
}

const remoteOK = `{"status":"success","message":"ok","data":{"entry_id":"e-9"}}`

func TestBridgeLocalSuccessIsJournaled(t *testing.T) {
	var gotPath atomic.Value
	local := localServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{"entry_id":"local-1"}}`)
	})
	var rec remoteCalls
	journal := NewFileJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := &Bridge{Local: local, Remote: remoteServer(t, &rec, 200, remoteOK), Journal: journal, Now: func() time.Time { return now }}
	res := b.Execute(context.Background(), adjustmentCommand())

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, SourceOffline, res.Source)
	assert.JSONEq(t, `{"entry_id":"local-1"}`, string(res.Data))
	assert.Equal(t, "/folio/postAdjustment", gotPath.Load())
	calls := rec.list()
	assert.Empty(t, calls)

	entries, err := journal.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cmd-1", entries[0].ID)
	assert.Equal(t, "folio.postAdjustment", entries[0].Type)
	assert.Equal(t, "f-1", entries[0].EntityIDs["folio_id"])
	assert.True(t, now.Equal(entries[0].Timestamp))
	assert.JSONEq(t, `{"action_type":"write_off","amount":5000}`, string(entries[0].Payload))
}

func TestBridgeWithoutLocalUsesRemote(t *testing.T) {
	var rec remoteCalls
	b := &Bridge{Remote: remoteServer(t, &rec, 200, remoteOK)}

	res := b.Execute(context.Background(), adjustmentCommand())
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, SourceBrowser, res.Source)
	assert.JSONEq(t, `{"entry_id":"e-9"}`, string(res.Data))

	calls := rec.list()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/folios/f-1/adjustments", calls[0].path)
	assert.Equal(t, "Bearer tok", calls[0].auth)
	assert.Equal(t, "cmd-1", calls[0].key)
	assert.JSONEq(t, `{"action_type":"write_off","amount":5000}`, calls[0].body)
}

func TestBridgeMissingLocalMethodFallsBack(t *testing.T) {
	local := localServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	var rec remoteCalls
	journal := NewFileJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	b := &Bridge{Local: local, Remote: remoteServer(t, &rec, 200, remoteOK), Journal: journal}

	res := b.Execute(context.Background(), adjustmentCommand())
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, SourceNoLocalAPI, res.Source)
	calls := rec.list()
	assert.Len(t, calls, 1)

	entries, err := journal.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBridgeLocalFailureFallsBack(t *testing.T) {
	local := localServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"error":"sqlite busy"}`)
	})
	var rec remoteCalls
	b := &Bridge{Local: local, Remote: remoteServer(t, &rec, 200, remoteOK)}

	res := b.Execute(context.Background(), adjustmentCommand())
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, SourceOfflineError, res.Source)
	calls := rec.list()
	assert.Len(t, calls, 1)
}

func TestBridgeRemoteErrorIsReported(t *testing.T) {
	var rec remoteCalls
	b := &Bridge{Remote: remoteServer(t, &rec, 409,
		`{"status":"error","message":"folio is closed","error":{"code":409,"reason":"FOLIO_NOT_OPEN"}}`)}

	res := b.Execute(context.Background(), adjustmentCommand())
	assert.False(t, res.OK())
	assert.Equal(t, SourceBrowser, res.Source)
	assert.Contains(t, res.Error, "FOLIO_NOT_OPEN")
	assert.Contains(t, res.Error, "folio is closed")
}

func TestBridgeRejectsIncompleteCommand(t *testing.T) {
	var rec remoteCalls
	b := &Bridge{Remote: remoteServer(t, &rec, 200, remoteOK)}

	res := b.Execute(context.Background(), Command{Namespace: "folio"})
	assert.False(t, res.OK())
	calls := rec.list()
	assert.Empty(t, calls)
}

func TestBridgeAssignsCommandID(t *testing.T) {
	var rec remoteCalls
	b := &Bridge{Remote: remoteServer(t, &rec, 200, remoteOK)}

	cmd := adjustmentCommand()
	cmd.ID = ""
	res := b.Execute(context.Background(), cmd)
	require.True(t, res.OK(), res.Error)
	calls := rec.list()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].key, 36)
}

func TestLocalBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	local := localServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success":false,"error":"down"}`)
	})

	for i := 0; i < 5; i++ {
		_, err := local.Execute(context.Background(), adjustmentCommand())
		require.Error(t, err)
	}
	assert.Equal(t, "open", local.State())

	_, err := local.Execute(context.Background(), adjustmentCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.EqualValues(t, 5, hits.Load())
}

func TestLocalNotFoundDoesNotTripBreaker(t *testing.T) {
	local := localServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	for i := 0; i < 8; i++ {
		_, err := local.Execute(context.Background(), adjustmentCommand())
		require.True(t, errors.Is(err, ErrNoLocalAPI))
	}
	assert.Equal(t, "closed", local.State())
}

func TestFileJournalReadMissingFile(t *testing.T) {
	j := NewFileJournal(filepath.Join(t.TempDir(), "none.jsonl"))
	entries, err := j.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
