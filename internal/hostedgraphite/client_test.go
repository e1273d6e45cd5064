package hostedgraphite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/catalog"
	"github.com/t77yq/hg-alerts/internal/model"
)

// fakeAlertsAPI mimics the alert creation endpoint: names must be unique
type fakeAlertsAPI struct {
	mu       sync.Mutex
	apiKey   string
	created  map[string]json.RawMessage
	requests int
}

func newFakeAlertsAPI(apiKey string) *fakeAlertsAPI {
	return &fakeAlertsAPI{apiKey: apiKey, created: make(map[string]json.RawMessage)}
}

func (f *fakeAlertsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if r.Method != http.MethodPost || r.URL.Path != "/v2/alerts/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != f.apiKey || pass != "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Header.Get("Content-Type") != "application/json" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var alert struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &alert); err != nil || alert.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, exists := f.created[alert.Name]; exists {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": "alert already exists"}`))
		return
	}

	f.created[alert.Name] = body
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id": "abc"}`))
}

func newTestClient(t *testing.T, apiKey string, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		APIKey:    apiKey,
		Endpoint:  server.URL + "/v2/alerts/",
		Timeout:   5 * time.Second,
		UserAgent: "hg-alerts/test",
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClient_CreateAlert(t *testing.T) {
	api := newFakeAlertsAPI("secret-key")
	client := newTestClient(t, "secret-key", api)

	alert := catalog.MissingLogsAlert("production", "api")
	err := client.CreateAlert(context.Background(), &alert)
	require.NoError(t, err)

	require.Contains(t, api.created, alert.Name)

	var sent, expected map[string]interface{}
	require.NoError(t, json.Unmarshal(api.created[alert.Name], &sent))
	data, err := json.Marshal(alert)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &expected))
	if diff := cmp.Diff(expected, sent); diff != "" {
		t.Errorf("unexpected payload (-want +got):\n%s", diff)
	}
}

func TestClient_CreateAlert_Conflict(t *testing.T) {
	api := newFakeAlertsAPI("secret-key")
	client := newTestClient(t, "secret-key", api)

	alert := catalog.StaticAlerts()[0]
	require.NoError(t, client.CreateAlert(context.Background(), &alert))

	err := client.CreateAlert(context.Background(), &alert)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlertExists))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, alert.Name, statusErr.AlertName)
	assert.Equal(t, 2, api.requests)
}

func TestClient_CreateAlert_Unauthorized(t *testing.T) {
	api := newFakeAlertsAPI("secret-key")
	client := newTestClient(t, "wrong-key", api)

	alert := catalog.StaticAlerts()[1]
	err := client.CreateAlert(context.Background(), &alert)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAlertExists))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestClient_CreateAlert_ServerError(t *testing.T) {
	client := newTestClient(t, "secret-key", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	alert := catalog.StaticAlerts()[2]
	err := client.CreateAlert(context.Background(), &alert)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, err.Error(), alert.Name)
}

func TestClient_CreateAlert_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL + "/v2/alerts/"
	server.Close()

	client, err := NewClient(ClientConfig{APIKey: "secret-key", Endpoint: endpoint}, zap.NewNop())
	require.NoError(t, err)

	alert := catalog.StaticAlerts()[3]
	err = client.CreateAlert(context.Background(), &alert)
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClient_CreateAlert_InvalidCriteria(t *testing.T) {
	api := newFakeAlertsAPI("secret-key")
	client := newTestClient(t, "secret-key", api)

	alert := model.AlertSpec{Name: "broken", AlertCriteria: model.AlertCriteria{Type: "below"}}
	err := client.CreateAlert(context.Background(), &alert)
	require.Error(t, err)
	assert.Equal(t, 0, api.requests)
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{}, zap.NewNop())
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "key"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, client.endpoint)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}
