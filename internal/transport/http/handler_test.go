package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quorumgate/internal/ledger"
	"quorumgate/internal/platform/middleware"
	dErrors "quorumgate/pkg/domain-errors"
)

// fakeEngine satisfies EngineService with canned results so handler behavior
// can be tested without the real state machine.
type fakeEngine struct {
	submitID int64
	tx       *ledger.Transaction
	owners   []string
	count    int64
	err      error
}

func (f *fakeEngine) Submit(context.Context, string, string, int64, json.RawMessage) (int64, error) {
	return f.submitID, f.err
}
func (f *fakeEngine) Confirm(context.Context, string, int64) error                   { return f.err }
func (f *fakeEngine) RevokeConfirmation(context.Context, string, int64) error        { return f.err }
func (f *fakeEngine) RequestCancellation(context.Context, string, int64) error       { return f.err }
func (f *fakeEngine) RevokeCancellationRequest(context.Context, string, int64) error { return f.err }
func (f *fakeEngine) Execute(context.Context, string, int64) error                   { return f.err }

func (f *fakeEngine) AddNewOwner(context.Context, string, string, int) (int64, error) {
	return f.submitID, f.err
}
func (f *fakeEngine) UpdateMinConfirmations(context.Context, string, int) (int64, error) {
	return f.submitID, f.err
}

func (f *fakeEngine) GetTransaction(context.Context, int64) (*ledger.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}
func (f *fakeEngine) TransactionCount(context.Context) (int64, error) { return f.count, f.err }
func (f *fakeEngine) HasConfirmed(context.Context, int64, string) (bool, error) {
	return true, f.err
}
func (f *fakeEngine) HasRequestedCancellation(context.Context, int64, string) (bool, error) {
	return false, f.err
}
func (f *fakeEngine) Owners(context.Context) ([]string, error) { return f.owners, f.err }
func (f *fakeEngine) Threshold(context.Context) (int, error)   { return 2, f.err }

// staticValidator accepts any token and returns a fixed subject.
type staticValidator struct {
	subject string
	err     error
}

func (v staticValidator) ValidateToken(string) (*middleware.Claims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &middleware.Claims{Subject: v.subject}, nil
}

func newTestServer(t *testing.T, engine EngineService, validator middleware.TokenValidator) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(NewHandler(engine, log), validator, log))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSubmitTransaction(t *testing.T) {
	engine := &fakeEngine{submitID: 7}
	srv := newTestServer(t, engine, staticValidator{subject: "alice"})

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/transactions", map[string]any{
		"target": "https://example.com/hook",
		"value":  100,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(7), decodeBody(t, resp)["id"])
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, staticValidator{subject: "alice"})

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/transactions", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "bad_request", decodeBody(t, resp)["error"])
}

func TestVoteEndpointsReturnUpdatedTransaction(t *testing.T) {
	engine := &fakeEngine{
		tx: &ledger.Transaction{
			ID:            4,
			Target:        "https://example.com/hook",
			Submitter:     "alice",
			CreatedAt:     time.Now().UTC(),
			Confirmations: 2,
			Executed:      true,
			ConfirmedBy:   map[string]bool{"alice": true, "bob": true},
		},
	}
	srv := newTestServer(t, engine, staticValidator{subject: "bob"})

	for _, path := range []string{"confirm", "confirm/revoke", "cancel", "cancel/revoke", "execute"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/v1/transactions/4/"+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)

		body := decodeBody(t, resp)
		require.Equal(t, float64(4), body["id"], path)
		require.Equal(t, true, body["executed"], path)
		// Vote maps never leave the service.
		require.NotContains(t, body, "confirmed_by", path)
	}
}

func TestInvalidTransactionID(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, staticValidator{subject: "alice"})

	for _, raw := range []string{"abc", "-1"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/v1/transactions/"+raw+"/confirm", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, raw)
	}
}

func TestGetVotes(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, staticValidator{subject: "alice"})

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/transactions/0/votes/carol", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "carol", body["owner"])
	require.Equal(t, true, body["confirmed"])
	require.Equal(t, false, body["cancellation_requested"])
}

func TestQuorumAndOwnerReads(t *testing.T) {
	engine := &fakeEngine{owners: []string{"alice", "bob", "carol"}, count: 12}
	srv := newTestServer(t, engine, staticValidator{subject: "alice"})

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/owners", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, float64(3), body["count"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/quorum", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Equal(t, float64(2), body["threshold"])
	require.Equal(t, float64(3), body["owner_count"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/transactions/count", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(12), decodeBody(t, resp)["count"])
}

func TestGovernanceProposalEndpoints(t *testing.T) {
	engine := &fakeEngine{submitID: 9}
	srv := newTestServer(t, engine, staticValidator{subject: "alice"})

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/owners", map[string]any{
		"owner":         "dave",
		"new_threshold": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(9), decodeBody(t, resp)["id"])

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/quorum", map[string]any{"threshold": 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, staticValidator{subject: "alice"})

	// No Authorization header at all.
	resp, err := http.Get(srv.URL + "/v1/owners")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Probe endpoint stays open.
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	validator := staticValidator{err: dErrors.New(dErrors.CodeUnauthorized, "invalid token")}
	srv := newTestServer(t, &fakeEngine{}, validator)

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/owners", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeNotAnOwner, http.StatusForbidden},
		{dErrors.CodeTransactionNotFound, http.StatusNotFound},
		{dErrors.CodeAlreadyConfirmed, http.StatusConflict},
		{dErrors.CodeAlreadyExecuted, http.StatusConflict},
		{dErrors.CodeAlreadyCancelled, http.StatusConflict},
		{dErrors.CodeInvalidThreshold, http.StatusUnprocessableEntity},
		{dErrors.CodeExecutionFailed, http.StatusBadGateway},
		{dErrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			engine := &fakeEngine{err: dErrors.New(tt.code, "boom")}
			srv := newTestServer(t, engine, staticValidator{subject: "alice"})

			resp := doRequest(t, http.MethodPost, srv.URL+"/v1/transactions/0/confirm", nil)
			require.Equal(t, tt.status, resp.StatusCode)

			body := decodeBody(t, resp)
			require.Equal(t, string(tt.code), body["error"])
		})
	}
}
