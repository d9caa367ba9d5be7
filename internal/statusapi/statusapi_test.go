package statusapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"clipshare-node/internal/pairinglog"
)

type fakeState string

func (f fakeState) String() string { return string(f) }

type fakeProvider struct {
	state fakeState
	peer  string
}

func (p fakeProvider) SessionState() State { return p.state }
func (p fakeProvider) PeerEndpoint() string { return p.peer }

type fakeReconnector struct{ triggered bool }

func (r *fakeReconnector) TriggerReconnect() { r.triggered = true }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ledger, err := pairinglog.Open(filepath.Join(t.TempDir(), "pairing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	s := &Server{
		Provider: fakeProvider{state: "CONNECTED", peer: "ws://10.0.0.5:8765"},
		Ledger:   ledger,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func localRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.RemoteAddr = "127.0.0.1:54321"
	return req
}

func TestHealthEndpointIsOpen(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusReportsProviderState(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := localRequest(t, http.MethodGet, "http://example/status")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "CONNECTED")
	require.Contains(t, rec.Body.String(), "ws://10.0.0.5:8765")
}

func TestPairingsListsLedgerEntries(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Ledger.Record(pairinglog.Attempt{
		DeviceID: "dev-1", DeviceName: "laptop", Platform: "linux",
		Outcome: pairinglog.OutcomeFirstAuthorized,
	}))

	rec := httptest.NewRecorder()
	req := localRequest(t, http.MethodGet, "http://example/pairings")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dev-1")
}

func TestNonLocalRequestIsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "http://example/status", nil)
	require.NoError(t, err)
	req.RemoteAddr = "203.0.113.9:443"
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReconnectRequiresPost(t *testing.T) {
	reconnector := &fakeReconnector{}
	s, _ := newTestServer(t)
	s.Reconnector = reconnector

	rec := httptest.NewRecorder()
	req := localRequest(t, http.MethodGet, "http://example/control/reconnect")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.False(t, reconnector.triggered)

	rec = httptest.NewRecorder()
	req = localRequest(t, http.MethodPost, "http://example/control/reconnect")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, reconnector.triggered)
}

func TestReconnectRejectsBadToken(t *testing.T) {
	reconnector := &fakeReconnector{}
	s, _ := newTestServer(t)
	s.Reconnector = reconnector
	s.ControlToken = "secret"

	rec := httptest.NewRecorder()
	req := localRequest(t, http.MethodPost, "http://example/control/reconnect")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, reconnector.triggered)

	rec = httptest.NewRecorder()
	req = localRequest(t, http.MethodPost, "http://example/control/reconnect")
	req.Header.Set("Authorization", "Bearer secret")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, reconnector.triggered)
}
