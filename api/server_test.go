package api

import (
	"bytes"
	"chat-live/auth"
	"chat-live/domain"
	"chat-live/domain/event"
	"chat-live/moderation"
	"chat-live/observability"
	"chat-live/repositories"
	"chat-live/runtime"
	"chat-live/search"
	"chat-live/services"
	"chat-live/storage"
	"chat-live/transport/ws"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const password = "Str0ng!Passw0rd"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type testAPI struct {
	t   *testing.T
	url string
}

func newTestAPI(t *testing.T, opts Options) testAPI {
	t.Helper()
	return newLimitedTestAPI(t, opts, nil)
}

// newLimitedTestAPI serves at most limitMessages messages per history page.
func newLimitedTestAPI(t *testing.T, opts Options, limitMessages *int) testAPI {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	index, err := search.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	uploadDir := t.TempDir()
	files, err := storage.NewDiskStore(uploadDir, 1024, log)
	require.NoError(t, err)
	filter, err := moderation.NewContentFilterFromDictionaries(log, moderation.NewCensoredLoader(nil), "censored", '*')
	require.NoError(t, err)

	users := repositories.NewUserRepository(db)
	chats := repositories.NewChatRepository(db, log)
	messages := repositories.NewMessageRepository(db, log, limitMessages)
	tokens := auth.NewTokenManager("secret", time.Hour)

	registry := prometheus.NewRegistry()
	server := NewServer(log,
		services.NewAuthService(log, users, tokens),
		services.NewChatService(log, users, chats, messages),
		services.NewMessageService(log, users, chats, messages, files, index, filter),
		1024,
	)
	opts.Tokens = tokens
	opts.Metrics = observability.NewMetrics(registry)
	opts.Gatherer = registry
	opts.Monitoring = observability.NewMonitoringManager(log)
	opts.UploadDir = uploadDir
	srv := httptest.NewServer(server.Routes(opts))
	t.Cleanup(srv.Close)
	return testAPI{t: t, url: srv.URL}
}

func (a testAPI) do(method, path, token string, body any) (int, []byte) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.url+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	return a.send(req, token)
}

func (a testAPI) send(req *http.Request, token string) (int, []byte) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, data
}

func (a testAPI) upload(token, chatID, filename string, content []byte) (int, []byte) {
	a.t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(a.t, form.WriteField("chatId", chatID))
	part, err := form.CreateFormFile("file", filename)
	require.NoError(a.t, err)
	_, err = part.Write(content)
	require.NoError(a.t, err)
	require.NoError(a.t, form.Close())

	req, err := http.NewRequest(http.MethodPost, a.url+"/messages/upload", &body)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return a.send(req, token)
}

type session struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (a testAPI) register(name string) session {
	a.t.Helper()
	status, body := a.do(http.MethodPost, "/user", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": password,
	})
	require.Equal(a.t, http.StatusCreated, status, string(body))
	var s session
	require.NoError(a.t, json.Unmarshal(body, &s))
	return s
}

func decodeAs[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func errorMessage(t *testing.T, body []byte) string {
	return decodeAs[messageBody](t, body).Message
}

func TestAPI_Register_Login_Search(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})

	alice := api.register("alice")
	req.NotEmpty(alice.ID)
	req.NotEmpty(alice.Token)
	api.register("bob")

	// Duplicate email
	status, _ := api.do(http.MethodPost, "/user", "", map[string]string{
		"name": "alice", "email": "alice@example.com", "password": password,
	})
	req.Equal(http.StatusBadRequest, status)

	// Login
	status, body := api.do(http.MethodPost, "/user/login", "", map[string]string{"email": "alice@example.com", "password": password})
	req.Equal(http.StatusOK, status)
	req.Equal(alice.ID, decodeAs[session](t, body).ID)
	status, _ = api.do(http.MethodPost, "/user/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	req.Equal(http.StatusUnauthorized, status)

	// Search excludes the caller
	status, body = api.do(http.MethodGet, "/user?search=example", alice.Token, nil)
	req.Equal(http.StatusOK, status)
	found := decodeAs[[]domain.User](t, body)
	req.Len(found, 1)
	req.Equal("bob", found[0].Name)
}

func TestAPI_Requires_Token(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})

	status, _ := api.do(http.MethodGet, "/chats", "", nil)
	req.Equal(http.StatusUnauthorized, status)
	status, _ = api.do(http.MethodGet, "/chats", "garbage", nil)
	req.Equal(http.StatusUnauthorized, status)
}

func TestAPI_Groups(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})
	a, b, c := api.register("alice"), api.register("bob"), api.register("carol")

	// Users sent as a JSON encoded string
	users, err := json.Marshal([]string{b.ID, c.ID})
	req.NoError(err)
	status, body := api.do(http.MethodPost, "/chats/group", a.Token, map[string]string{"name": "Trio", "users": string(users)})
	req.Equal(http.StatusOK, status, string(body))
	group := decodeAs[domain.Chat](t, body)
	req.Len(group.Users, 3)
	req.True(group.IsGroupChat)
	req.Equal(a.ID, group.GroupAdmin.ID)

	status, body = api.do(http.MethodPost, "/chats/group", a.Token, map[string]any{"name": "Duo", "users": []string{b.ID}})
	req.Equal(http.StatusBadRequest, status)
	req.Equal("More than 2 users are required to form a group", errorMessage(t, body))

	status, body = api.do(http.MethodPost, "/chats/group", a.Token, map[string]any{"users": []string{b.ID, c.ID}})
	req.Equal(http.StatusBadRequest, status)
	req.Equal("Please fill all the fields", errorMessage(t, body))

	status, body = api.do(http.MethodPut, "/chats/rename", a.Token, map[string]string{"chatId": group.ID, "chatName": "Squad"})
	req.Equal(http.StatusOK, status)
	req.Equal("Squad", decodeAs[domain.Chat](t, body).ChatName)

	status, body = api.do(http.MethodPut, "/chats/group/remove", a.Token, map[string]string{"chatId": group.ID, "userId": c.ID})
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[domain.Chat](t, body).Users, 2)

	status, _ = api.do(http.MethodPut, "/chats/group/add", a.Token, map[string]string{"chatId": "unknown", "userId": c.ID})
	req.Equal(http.StatusNotFound, status)
}

func TestAPI_Messages(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})
	a, b := api.register("alice"), api.register("bob")

	status, body := api.do(http.MethodPost, "/chats", a.Token, map[string]string{"userId": b.ID})
	req.Equal(http.StatusOK, status, string(body))
	chat := decodeAs[domain.Chat](t, body)

	// Send
	status, body = api.do(http.MethodPost, "/messages", a.Token, map[string]string{"content": "hello world", "chatId": chat.ID})
	req.Equal(http.StatusOK, status, string(body))
	msg := decodeAs[domain.Message](t, body)
	req.NotEmpty(msg.ID)
	req.Equal("alice", msg.Sender.Name)
	req.Equal(chat.ID, msg.ChatID())

	status, _ = api.do(http.MethodPost, "/messages", a.Token, map[string]string{"chatId": chat.ID})
	req.Equal(http.StatusBadRequest, status)

	// History and chat list
	status, body = api.do(http.MethodGet, "/messages/"+chat.ID, b.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[[]domain.Message](t, body), 1)

	status, body = api.do(http.MethodGet, "/chats", b.Token, nil)
	req.Equal(http.StatusOK, status)
	chats := decodeAs[[]domain.Chat](t, body)
	req.Len(chats, 1)
	req.Equal(msg.ID, chats[0].LatestMessage.ID)

	// Search
	status, body = api.do(http.MethodGet, "/messages/search?q=hello&chatId="+chat.ID, b.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[[]domain.Message](t, body), 1)
	status, body = api.do(http.MethodGet, "/messages/search?q=hello", a.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[[]domain.Message](t, body), 1)

	// A user outside the chat finds nothing
	carol := api.register("carol")
	status, body = api.do(http.MethodGet, "/messages/search?q=hello", carol.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Empty(decodeAs[[]domain.Message](t, body))
	status, _ = api.do(http.MethodGet, "/messages/search?q=hello&chatId="+chat.ID, carol.Token, nil)
	req.Equal(http.StatusNotFound, status)

	// Mutations
	status, body = api.do(http.MethodPost, "/messages/"+msg.ID+"/reaction", b.Token, map[string]string{"reaction": "👍"})
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[domain.Message](t, body).Reactions, 1)

	status, _ = api.do(http.MethodPut, "/messages/"+msg.ID+"/edit", b.Token, map[string]string{"content": "nope"})
	req.Equal(http.StatusForbidden, status)

	status, body = api.do(http.MethodPut, "/messages/"+msg.ID+"/pin", b.Token, nil)
	req.Equal(http.StatusOK, status)
	req.True(decodeAs[domain.Message](t, body).IsPinned)

	status, body = api.do(http.MethodPost, "/messages/"+msg.ID+"/read", b.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Len(decodeAs[domain.Message](t, body).ReadBy, 1)

	// Delete
	status, _ = api.do(http.MethodDelete, "/messages/"+msg.ID, b.Token, nil)
	req.Equal(http.StatusUnauthorized, status)
	status, body = api.do(http.MethodDelete, "/messages/"+msg.ID, a.Token, nil)
	req.Equal(http.StatusOK, status)
	deleted := decodeAs[deletedResponse](t, body)
	req.Equal("Message deleted successfully", deleted.Message)
	req.Equal(chat.ID, deleted.ChatID)
	status, _ = api.do(http.MethodDelete, "/messages/"+msg.ID, a.Token, nil)
	req.Equal(http.StatusNotFound, status)
}

func TestAPI_Messages_Paged(t *testing.T) {
	req := require.New(t)
	limit := 2
	api := newLimitedTestAPI(t, Options{}, &limit)
	a, b := api.register("alice"), api.register("bob")
	status, body := api.do(http.MethodPost, "/chats", a.Token, map[string]string{"userId": b.ID})
	req.Equal(http.StatusOK, status, string(body))
	chat := decodeAs[domain.Chat](t, body)

	// Given three messages in a history limited to two per page
	for _, content := range []string{"one", "two", "three"} {
		status, body = api.do(http.MethodPost, "/messages", a.Token, map[string]string{"content": content, "chatId": chat.ID})
		req.Equal(http.StatusOK, status, string(body))
	}
	page := func(query string) ([]string, string) {
		r, err := http.NewRequest(http.MethodGet, api.url+"/messages/"+chat.ID+query, nil)
		req.NoError(err)
		r.Header.Set("Authorization", "Bearer "+b.Token)
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		defer func() { _ = resp.Body.Close() }()
		req.Equal(http.StatusOK, resp.StatusCode)
		data, err := io.ReadAll(resp.Body)
		req.NoError(err)
		var contents []string
		for _, m := range decodeAs[[]domain.Message](t, data) {
			contents = append(contents, m.Content)
		}
		return contents, resp.Header.Get(nextCursorHeader)
	}

	// When the newest page is read
	contents, next := page("")

	// Then it carries the cursor of the older page
	req.Equal([]string{"two", "three"}, contents)
	req.NotEmpty(next)

	// When the cursor is followed
	contents, next = page("?cursor=" + url.QueryEscape(next))

	// Then the history ends without a further cursor
	req.Equal([]string{"one"}, contents)
	req.Empty(next)
}

func TestAPI_Upload(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})
	a, b := api.register("alice"), api.register("bob")
	status, body := api.do(http.MethodPost, "/chats", a.Token, map[string]string{"userId": b.ID})
	req.Equal(http.StatusOK, status)
	chat := decodeAs[domain.Chat](t, body)

	// Executables are refused and nothing is created
	status, _ = api.upload(a.Token, chat.ID, "virus.exe", []byte("MZ"))
	req.Equal(http.StatusBadRequest, status)
	status, body = api.do(http.MethodGet, "/messages/"+chat.ID, a.Token, nil)
	req.Equal(http.StatusOK, status)
	req.Empty(decodeAs[[]domain.Message](t, body))

	// A png is stored and served
	status, body = api.upload(a.Token, chat.ID, "cat.png", pngHeader)
	req.Equal(http.StatusCreated, status, string(body))
	msg := decodeAs[domain.Message](t, body)
	req.True(msg.IsFile)
	req.Equal(".png", msg.FileType)

	status, served := api.do(http.MethodGet, msg.Content, "", nil)
	req.Equal(http.StatusOK, status)
	req.Equal(pngHeader, served)

	// Over the ceiling
	status, _ = api.upload(a.Token, chat.ID, "big.png", append(pngHeader, make([]byte, 2048)...))
	req.Equal(http.StatusBadRequest, status)
}

func TestAPI_Rate_Limited(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{RateLimit: NewRateLimiter(0.001, 1)})

	status, _ := api.do(http.MethodGet, "/chats", "", nil)
	req.Equal(http.StatusUnauthorized, status)
	status, body := api.do(http.MethodGet, "/chats", "", nil)
	req.Equal(http.StatusTooManyRequests, status)
	req.Equal("too many requests", errorMessage(t, body))
}

func TestAPI_Preflight(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})

	r, err := http.NewRequest(http.MethodOptions, api.url+"/messages", nil)
	req.NoError(err)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()

	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal("http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPI_Health_And_Metrics(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, Options{})

	// Given one observed request
	status, _ := api.do(http.MethodGet, "/chats", "", nil)
	req.Equal(http.StatusUnauthorized, status)

	// When health is requested before any worker tick
	status, body := api.do(http.MethodGet, "/health", "", nil)

	// Then the initial snapshot is served
	req.Equal(http.StatusOK, status)
	req.Equal("starting", decodeAs[observability.HealthStats](t, body).Status)

	// And the request shows up with its route template
	status, body = api.do(http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, status)
	req.Contains(string(body), `chat_live_http_requests_total{code="4xx",method="GET",route="/chats"} 1`)
}

func TestAPI_Event_Channel_Through_Routes(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Given the event handler mounted behind the metrics middleware
	o := runtime.NewOrchestrator(log, runtime.Config{BufferSize: 64, DispatchTimeout: time.Second},
		observability.NewMetrics(prometheus.NewRegistry()))
	go o.Start(ctx)
	api := newTestAPI(t, Options{Events: ws.NewHandler(ctx, log, ws.Config{}, o.Registry(), o.Router())})

	// When a client dials /ws and sends setup
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(api.url, "http")+"/ws", nil)
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	req.Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	req.NoError(conn.WriteJSON(event.Frame{Event: event.KindSetup, Data: json.RawMessage(`{"_id":"alice"}`)}))

	// Then the connection is acknowledged and registered
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var ack event.Frame
	req.NoError(conn.ReadJSON(&ack))
	req.Equal(event.KindConnected, ack.Event)
	req.Len(o.Registry().ConnectionsFor("alice"), 1)
}
