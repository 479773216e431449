package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/isdelr/practice-server/internal/api"
	"github.com/isdelr/practice-server/internal/api/handlers"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/isdelr/practice-server/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	peterEmail  = "peter@abv.bg"
	georgeEmail = "george@abv.bg"
	stormTeamID = "34a1cab1-81f1-47e5-aec3-ab6c9810efe1"
)

func ids(list []map[string]interface{}) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i], _ = r["_id"].(string)
	}
	return out
}

func TestCollections(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := ts.Request(http.MethodGet, "/data", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var names []string
	require.NoError(t, resp.JSON(&names))
	assert.Contains(t, names, "games")
	assert.Contains(t, names, "records")
	assert.NotContains(t, names, "users")
}

func TestQueryComposition(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := ts.Request(http.MethodGet, "/data/records?where=val%3D2", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []string{"i03", "i04", "i05", "i08"}, ids(resp.List()))

	resp = ts.Request(http.MethodGet, "/data/records?where=val%3D2&sortBy=name%20desc", nil)
	assert.Equal(t, []string{"i08", "i05", "i04", "i03"}, ids(resp.List()))

	resp = ts.Request(http.MethodGet, "/data/records?where=val%3D2&offset=1&pageSize=2", nil)
	assert.Equal(t, []string{"i04", "i05"}, ids(resp.List()))

	resp = ts.Request(http.MethodGet, "/data/records?where=val%3D2&count", nil)
	assert.Equal(t, "4", string(resp.Body))

	resp = ts.Request(http.MethodGet, "/data/records?where=val%3D%3D", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Could not parse WHERE clause, check your syntax.", resp.Object()["message"])

	resp = ts.Request(http.MethodGet, "/data/records/i01?select=name", nil)
	assert.Equal(t, map[string]interface{}{"name": "John1"}, resp.Object())

	resp = ts.Request(http.MethodGet, "/data/records?offset=NaN&pageSize=NaN", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.List(), 10)
}

func TestDefaultRules(t *testing.T) {
	ts := testutil.NewTestServer(t)
	peter := ts.Login(peterEmail, testutil.SeedPassword)
	george := ts.Login(georgeEmail, testutil.SeedPassword)

	resp := ts.Request(http.MethodPost, "/data/ideas", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, float64(401), resp.Object()["code"])

	resp = ts.Request(http.MethodPost, "/data/ideas", map[string]string{"title": "x"}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)
	idea := resp.Object()
	id := idea["_id"].(string)
	assert.Equal(t, testutil.PeterID, idea["_ownerId"])

	resp = ts.Request(http.MethodPut, "/data/ideas/"+id, map[string]string{"title": "y"}, "X-Authorization", george)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.Request(http.MethodPut, "/data/ideas/"+id, map[string]string{"title": "y"}, "X-Authorization", george, "X-Admin", "true")
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = ts.Request(http.MethodPatch, "/data/ideas/"+id, map[string]string{"description": "d", "_ownerId": testutil.GeorgeID}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, testutil.PeterID, resp.Object()["_ownerId"])
	assert.Equal(t, "y", resp.Object()["title"])

	resp = ts.Request(http.MethodPost, "/data/ideas/"+id, map[string]string{}, "X-Authorization", peter)
	assert.Equal(t, "Use PUT to update records", resp.Object()["message"])

	resp = ts.Request(http.MethodPut, "/data/ideas", map[string]string{}, "X-Authorization", peter)
	assert.Equal(t, "Missing entry ID", resp.Object()["message"])

	resp = ts.Request(http.MethodDelete, "/data/ideas/"+id, nil, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Object(), "_deletedOn")

	resp = ts.Request(http.MethodDelete, "/data/ideas/"+id, nil, "X-Authorization", peter)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestTeamMembershipRules(t *testing.T) {
	ts := testutil.NewTestServer(t)
	peter := ts.Login(peterEmail, testutil.SeedPassword)
	george := ts.Login(georgeEmail, testutil.SeedPassword)

	resp := ts.Request(http.MethodPost, "/data/members", map[string]string{"teamId": stormTeamID, "status": "member"}, "X-Authorization", george)
	require.Equal(t, http.StatusOK, resp.Status)
	member := resp.Object()
	assert.Equal(t, "pending", member["status"])
	id := member["_id"].(string)

	resp = ts.Request(http.MethodPut, "/data/members/"+id, map[string]string{"teamId": "other", "status": "member"}, "X-Authorization", george)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.Request(http.MethodPut, "/data/members/"+id, map[string]string{"teamId": "other", "status": "member"}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, stormTeamID, resp.Object()["teamId"])
	assert.Equal(t, "member", resp.Object()["status"])

	resp = ts.Request(http.MethodDelete, "/data/members/"+id, nil, "X-Authorization", george)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestAuth(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := ts.Request(http.MethodPost, "/users/register", map[string]string{"email": "new@abv.bg", "password": "pass", "username": "New"})
	require.Equal(t, http.StatusOK, resp.Status)
	user := resp.Object()
	token := user["accessToken"].(string)
	assert.NotContains(t, user, "hashedPassword")
	assert.NotContains(t, user, "password")

	resp = ts.Request(http.MethodPost, "/users/register", map[string]string{"email": "NEW@abv.bg", "password": "x"})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "A user with the same email already exists", resp.Object()["message"])

	resp = ts.Request(http.MethodPost, "/users/register", map[string]string{"email": "x@abv.bg"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Missing fields", resp.Object()["message"])

	resp = ts.Request(http.MethodPost, "/users/login", map[string]string{"email": peterEmail, "password": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "Login or password don't match", resp.Object()["message"])

	resp = ts.Request(http.MethodGet, "/users/me", nil, "X-Authorization", token)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "new@abv.bg", resp.Object()["email"])
	assert.NotContains(t, resp.Object(), "hashedPassword")

	resp = ts.Request(http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = ts.Request(http.MethodGet, "/data/records", nil, "X-Authorization", "not-a-token")
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "Invalid access token", resp.Object()["message"])

	resp = ts.Request(http.MethodGet, "/users/logout", nil, "X-Authorization", token)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Empty(t, resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Body)

	resp = ts.Request(http.MethodGet, "/users/me", nil, "X-Authorization", token)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.Request(http.MethodGet, "/users/logout", nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "User session does not exist", resp.Object()["message"])
}

func TestPasswordHashNeverLeaks(t *testing.T) {
	ts := testutil.NewTestServer(t)
	peter := ts.Login(peterEmail, testutil.SeedPassword)

	resp := ts.Request(http.MethodPost, "/data/comments", map[string]string{"text": "hi"}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)

	for _, path := range []string{
		"/data/comments?load=author%3D_ownerId%3Ausers",
		"/data/teams?load=owner%3D_ownerId%3Ausers",
		"/users/me",
	} {
		resp = ts.Request(http.MethodGet, path, nil, "X-Authorization", peter)
		require.Equal(t, http.StatusOK, resp.Status, path)
		assert.NotContains(t, string(resp.Body), "hashedPassword", path)
	}

	resp = ts.Request(http.MethodGet, "/data/comments?load=author%3D_ownerId%3Ausers", nil)
	var comments []map[string]interface{}
	require.NoError(t, resp.JSON(&comments))
	require.NotEmpty(t, comments)
	author := comments[len(comments)-1]["author"].(map[string]interface{})
	assert.Equal(t, "Peter", author["username"])
}

func TestEndToEndScenario(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(`
notes:
  "*":
    secret:
      .read: [Owner]
`), 0o644))
	cfg := testutil.TestConfig(t)
	cfg.RulesFile = rulesFile
	ts := testutil.NewTestServerWithConfig(t, cfg)

	resp := ts.Request(http.MethodPost, "/users/register", map[string]string{"email": "a@abv.bg", "password": "a"})
	require.Equal(t, http.StatusOK, resp.Status)
	tokenA := resp.Object()["accessToken"].(string)
	resp = ts.Request(http.MethodPost, "/users/register", map[string]string{"email": "b@abv.bg", "password": "b"})
	require.Equal(t, http.StatusOK, resp.Status)
	tokenB := resp.Object()["accessToken"].(string)

	resp = ts.Request(http.MethodPost, "/data/notes", map[string]string{"title": "R", "secret": "s"}, "X-Authorization", tokenA)
	require.Equal(t, http.StatusOK, resp.Status)
	created := resp.Object()
	id := created["_id"].(string)

	resp = ts.Request(http.MethodGet, "/data/notes/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "R", resp.Object()["title"])
	assert.NotContains(t, resp.Object(), "secret")

	resp = ts.Request(http.MethodGet, "/data/notes/"+id, nil, "X-Authorization", tokenA)
	assert.Equal(t, "s", resp.Object()["secret"])

	resp = ts.Request(http.MethodGet, "/data/notes/"+id+"?select=secret", nil, "X-Authorization", tokenA)
	assert.Equal(t, map[string]interface{}{"secret": "s"}, resp.Object())

	resp = ts.Request(http.MethodGet, "/data/notes?select=title,secret", nil, "X-Authorization", tokenA)
	assert.Equal(t, []map[string]interface{}{{"title": "R", "secret": "s"}}, resp.List())

	resp = ts.Request(http.MethodPut, "/data/notes/"+id, map[string]string{"title": "B"}, "X-Authorization", tokenB)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	time.Sleep(2 * time.Millisecond)
	resp = ts.Request(http.MethodPut, "/data/notes/"+id, map[string]string{"title": "A"}, "X-Authorization", tokenA)
	require.Equal(t, http.StatusOK, resp.Status)
	updated := resp.Object()
	assert.Equal(t, "A", updated["title"])
	assert.Equal(t, created["_ownerId"], updated["_ownerId"])
	assert.Equal(t, created["_createdOn"], updated["_createdOn"])
	assert.Greater(t, updated["_updatedOn"].(float64), created["_createdOn"].(float64))
}

func TestServiceSurface(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := ts.Request(http.MethodGet, "/nothing/here", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, `Service "nothing" is not supported`, resp.Object()["message"])

	resp = ts.Request(http.MethodOptions, "/data/records", nil,
		"Origin", "http://localhost:3000", "Access-Control-Request-Method", "PATCH", "Access-Control-Request-Headers", "X-Authorization")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Body)

	resp = ts.Request(http.MethodOptions, "/data/records", nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = ts.Request(http.MethodGet, "/data/records", nil, "Origin", "http://localhost:3000")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = ts.Request(http.MethodGet, "/util/throttle", nil)
	assert.Equal(t, "false", string(resp.Body))

	resp = ts.Request(http.MethodGet, "/audit", nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	ts.Login(peterEmail, testutil.SeedPassword)
	resp = ts.Request(http.MethodGet, "/audit?limit=5", nil, "X-Admin", "true")
	require.Equal(t, http.StatusOK, resp.Status)
	events := resp.List()
	require.NotEmpty(t, events)
	assert.Equal(t, "user.login", events[0]["type"])

	resp = ts.Request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, strings.Contains(string(resp.Body), "practice_server_http_requests_total"))
}

func TestJSONStore(t *testing.T) {
	cfg := testutil.TestConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.JSONStoreDir, "phonebook.json"),
		[]byte(`{"p1": {"person": "Maya", "phone": "+1-555-7653"}}`), 0o644))
	ts := testutil.NewTestServerWithConfig(t, cfg)

	resp := ts.Request(http.MethodGet, "/jsonstore/phonebook/p1/person", nil)
	assert.Equal(t, `"Maya"`, string(resp.Body))

	resp = ts.Request(http.MethodPost, "/jsonstore/phonebook", map[string]string{"person": "Ivan"})
	require.Equal(t, http.StatusOK, resp.Status)
	id := resp.Object()["_id"].(string)

	resp = ts.Request(http.MethodPatch, "/jsonstore/phonebook/"+id, map[string]string{"phone": "42"})
	assert.Equal(t, "42", resp.Object()["phone"])
	assert.Equal(t, "Ivan", resp.Object()["person"])

	resp = ts.Request(http.MethodPut, "/jsonstore/phonebook/missing", map[string]string{})
	assert.Equal(t, http.StatusNoContent, resp.Status)

	resp = ts.Request(http.MethodDelete, "/jsonstore/phonebook/"+id, nil)
	assert.Equal(t, "Ivan", resp.Object()["person"])

	resp = ts.Request(http.MethodDelete, "/jsonstore/phonebook/"+id, nil)
	assert.Equal(t, "null", string(resp.Body))

	resp = ts.Request(http.MethodGet, "/jsonstore/nothing", nil)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestChangeFeed(t *testing.T) {
	ts := testutil.NewTestServer(t)
	peter := ts.Login(peterEmail, testutil.SeedPassword)

	conn, _, err := websocket.DefaultDialer.Dial(ts.WebSocketURL("/ws/ideas"), nil)
	require.NoError(t, err)
	defer conn.Close()
	// Registration with the hub is asynchronous.
	time.Sleep(50 * time.Millisecond)

	resp := ts.Request(http.MethodPost, "/data/ideas", map[string]string{"title": "feed"}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, resp.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Action  string                 `json:"action"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "create", msg.Action)
	assert.Equal(t, "ideas", msg.Payload["collection"])
	assert.Equal(t, resp.Object()["_id"], msg.Payload["id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "dance"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Action)
}

func TestChangeFeedReadRules(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(`
secrets:
  .read: [Owner]
  "*":
    pin:
      .read: false
`), 0o644))
	cfg := testutil.TestConfig(t)
	cfg.RulesFile = rulesFile
	ts := testutil.NewTestServerWithConfig(t, cfg)
	peter := ts.Login(peterEmail, testutil.SeedPassword)
	george := ts.Login(georgeEmail, testutil.SeedPassword)

	dial := func(path string, header http.Header) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(ts.WebSocketURL(path), header)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	anonymous := dial("/ws/secrets", nil)
	owner := dial("/ws/secrets?token="+peter, nil)
	other := dial("/ws", http.Header{"X-Authorization": []string{george}})

	_, resp, err := websocket.DefaultDialer.Dial(ts.WebSocketURL("/ws?token=bogus"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	time.Sleep(50 * time.Millisecond)

	created := ts.Request(http.MethodPost, "/data/secrets", map[string]string{"title": "vault", "pin": "4321"}, "X-Authorization", peter)
	require.Equal(t, http.StatusOK, created.Status)

	var msg struct {
		Action  string                 `json:"action"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, owner.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, owner.ReadJSON(&msg))
	assert.Equal(t, "create", msg.Action)
	record, ok := msg.Payload["record"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "vault", record["title"])
	assert.NotContains(t, record, "pin")

	for _, conn := range []*websocket.Conn{anonymous, other} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, data, err := conn.ReadMessage()
		assert.Error(t, err, "unexpected message %s", data)
	}
}

type panickingData struct {
	services.DataServiceProvider
}

func (panickingData) Collections() []string {
	panic("boom")
}

func TestRecovererWritesErrorBody(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Data: panickingData{},
		Util: services.NewUtilService(false),
	})
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/data")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body handlers.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, handlers.ErrorBody{Code: http.StatusInternalServerError, Message: "Server Error"}, body)
}
