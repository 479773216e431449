package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/isdelr/practice-server/internal/app"
	"github.com/isdelr/practice-server/internal/config"
)

// Seed users share the password "123456"; the admin's is "admin".
const (
	PeterID       = "35c62d76-8152-4626-8712-eeb96381bea8"
	GeorgeID      = "847ec027-f659-4086-8032-5173e2f9c93a"
	SeedPassword  = "123456"
	AdminPassword = "admin"
)

// TestConfig returns a configuration suitable for testing
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:          0,
		IdentityField: "email",
		ServerSecret:  config.DefaultSecret,
		JSONStoreDir:  t.TempDir(),
		DatabasePath:  ":memory:",
		LogLevel:      "error",
		PasswordHash:  "hmac",
		SessionSweep:  "@every 1h",
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server *httptest.Server
	App    *app.App
	t      *testing.T
}

// NewTestServer creates a complete test server with the built-in seed.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWithConfig(t, TestConfig(t))
}

// NewTestServerWithConfig creates a test server from cfg.
func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	a.Start()

	server := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		server.Close()
		a.Stop()
	})

	return &TestServer{Server: server, App: a, t: t}
}

// Response is a decoded HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v.
func (r Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Object decodes the body as a JSON object.
func (r Response) Object() map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// List decodes the body as a JSON array of objects.
func (r Response) List() []map[string]interface{} {
	var out []map[string]interface{}
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// Request performs a request. body is JSON-encoded unless it is a string;
// headers are pairs of name and value.
func (ts *TestServer) Request(method, path string, body interface{}, headers ...string) Response {
	ts.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("failed to build request: %v", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ts.t.Fatalf("failed to read response: %v", err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
}

// Login returns an access token for a seed user.
func (ts *TestServer) Login(email, password string) string {
	ts.t.Helper()
	resp := ts.Request(http.MethodPost, "/users/login", map[string]string{"email": email, "password": password})
	if resp.Status != http.StatusOK {
		ts.t.Fatalf("login as %s failed: %d %s", email, resp.Status, resp.Body)
	}
	token, _ := resp.Object()["accessToken"].(string)
	return token
}

// WebSocketURL returns the ws:// URL for path.
func (ts *TestServer) WebSocketURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + path
}
