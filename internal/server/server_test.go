package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/concertbot/server/internal/agent/graph"
	"github.com/concertbot/server/internal/agent/graph/conversations"
	"github.com/concertbot/server/internal/agent/model"
	"github.com/concertbot/server/internal/agent/repo"
	"github.com/concertbot/server/internal/agent/service"
	"github.com/concertbot/server/internal/events"
	"github.com/concertbot/server/internal/geo"
)

type stubFinder struct{}

func (stubFinder) ByCity(_ context.Context, _, city string) (*model.Listing, error) {
	return &model.Listing{Title: "Concerts in " + city, Concerts: []model.ConcertRecord{{Name: "Show"}}}, nil
}

func (stubFinder) ByGenre(_ context.Context, _, genre, city string) (*model.Listing, error) {
	return &model.Listing{Title: genre + " concerts in " + city, Concerts: []model.ConcertRecord{{Name: "Show"}}}, nil
}

func (stubFinder) ByDateRange(_ context.Context, _, phrase, city string) (*model.Listing, error) {
	return &model.Listing{Title: "Concerts in " + city + " (" + phrase + ")"}, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, coords *geo.Coordinates) geo.Resolution {
	if coords == nil {
		return geo.Resolution{Location: model.Location{City: "Austin", Country: "United States"}, Random: true}
	}
	return geo.Resolution{Location: model.Location{City: "Seattle", Country: "United States"}}
}

func newTestServer(t *testing.T, staticDir string) *httptest.Server {
	t.Helper()
	sessions := repo.NewMemorySessionRepository()
	history := repo.NewMemoryConversationRepository(10)
	cfg := model.ConversationConfig{
		HistoryLimit:  10,
		FollowUpDelay: 50 * time.Millisecond,
		FallbackDelay: 10 * time.Millisecond,
		CancelPending: true,
	}

	runner, err := graph.BuildResponseGraph(context.Background(), graph.Config{
		Sessions:         sessions,
		ConversationRepo: history,
		Finder:           stubFinder{},
		Conversation:     cfg,
		Picker:           func(int) int { return 0 },
	})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := service.New(service.Deps{
		Runner:           runner,
		Sessions:         sessions,
		ConversationRepo: history,
		Cache:            events.NewMemoryCache(),
		Finder:           stubFinder{},
		Fallback:         events.NewFallback(nil),
		Resolver:         stubResolver{},
		Hub:              service.NewHub(10),
	}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)

	ts := httptest.NewServer(New(svc, model.ServerConfig{StaticDir: staticDir, AllowOrigin: "*"}).Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp
}

type sessionPayload struct {
	Session model.Session `json:"session"`
	Reply   *model.Reply  `json:"reply"`
}

func createSession(t *testing.T, base, body string) sessionPayload {
	t.Helper()
	var out sessionPayload
	if resp := do(t, http.MethodPost, base+"/api/sessions", body, &out); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	return out
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t, "")
	var out map[string]string
	resp := do(t, http.MethodGet, ts.URL+"/health", "", &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, out)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("CORS header = %q", got)
	}

	resp = do(t, http.MethodOptions, ts.URL+"/api/sessions", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	created := createSession(t, ts.URL, `{"latitude": 47.6, "longitude": -122.3}`)
	if created.Session.DefaultLocation.City != "Seattle" || created.Reply == nil || created.Reply.Text == "" {
		t.Fatalf("created = %+v", created)
	}
	base := ts.URL + "/api/sessions/" + created.Session.ID

	var reply model.Reply
	do(t, http.MethodPost, base+"/messages", `{"text":"hello Bob"}`, &reply)
	if !strings.HasPrefix(reply.Text, "Thanks, Bob!") {
		t.Fatalf("name reply = %+v", reply)
	}

	reply = model.Reply{}
	do(t, http.MethodPost, base+"/messages", `{"text":"jazz in Chicago"}`, &reply)
	if reply.Kind != model.ReplyListing || reply.Listing == nil || reply.Listing.Title != "jazz Bob's concerts in Chicago" {
		t.Fatalf("listing reply = %+v", reply)
	}

	var session model.Session
	do(t, http.MethodGet, base, "", &session)
	if session.UserName != "Bob" || session.Stage != model.StageConversing {
		t.Fatalf("session = %+v", session)
	}

	var history []conversations.Entry
	do(t, http.MethodGet, base+"/messages", "", &history)
	if len(history) < 5 || history[0].Role != "assistant" || history[1].Text != "hello Bob" {
		t.Fatalf("history = %+v", history)
	}

	var loc sessionPayload
	do(t, http.MethodPut, base+"/location", ``, &loc)
	if loc.Session.DefaultLocation.City != "Austin" || loc.Reply == nil || !strings.Contains(loc.Reply.Text, "Austin") {
		t.Fatalf("location = %+v", loc)
	}

	if resp := do(t, http.MethodDelete, base, "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	var errBody map[string]string
	if resp := do(t, http.MethodGet, base, "", &errBody); resp.StatusCode != http.StatusNotFound || errBody["error"] != "session not found" {
		t.Fatalf("after delete = %d %v", resp.StatusCode, errBody)
	}
}

func TestMessageErrors(t *testing.T) {
	ts := newTestServer(t, "")
	created := createSession(t, ts.URL, "")
	base := ts.URL + "/api/sessions/" + created.Session.ID

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"blank text", base + "/messages", `{"text":"  "}`, http.StatusBadRequest},
		{"bad json", base + "/messages", `{"text":`, http.StatusBadRequest},
		{"unknown session", ts.URL + "/api/sessions/nope/messages", `{"text":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]string
			resp := do(t, http.MethodPost, tt.url, tt.body, &out)
			if resp.StatusCode != tt.status || out["error"] == "" {
				t.Fatalf("got %d %v", resp.StatusCode, out)
			}
		})
	}
}

func TestPendingCollectsFollowUp(t *testing.T) {
	ts := newTestServer(t, "")
	created := createSession(t, ts.URL, "")
	base := ts.URL + "/api/sessions/" + created.Session.ID
	do(t, http.MethodPost, base+"/messages", `{"text":"Ann"}`, nil)
	do(t, http.MethodPost, base+"/messages", `{"text":"rock"}`, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var pending []model.Reply
		do(t, http.MethodGet, base+"/pending", "", &pending)
		if len(pending) > 0 {
			if pending[0].Text != "Ann, who's your favorite rock band?" {
				t.Fatalf("pending = %+v", pending)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("follow-up never queued")
}

func TestWebSocketTurnAndPush(t *testing.T) {
	ts := newTestServer(t, "")
	created := createSession(t, ts.URL, "")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + created.Session.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseNow()

	send := func(text string) Frame {
		t.Helper()
		if err := wsjson.Write(ctx, conn, messageRequest{Text: text}); err != nil {
			t.Fatal(err)
		}
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatal(err)
		}
		return f
	}

	if f := send("Ann"); f.Type != FrameReply || !strings.HasPrefix(f.Reply.Text, "Thanks, Ann!") {
		t.Fatalf("name frame = %+v", f)
	}
	if f := send(" "); f.Type != FrameError || f.Error != "message must not be empty" {
		t.Fatalf("error frame = %+v", f)
	}
	if f := send("pop"); f.Type != FrameReply || f.Reply.Kind != model.ReplyListing {
		t.Fatalf("listing frame = %+v", f)
	}

	var pushed Frame
	if err := wsjson.Read(ctx, conn, &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Reply == nil || pushed.Reply.Text != "Ann, who's your favorite pop artist?" {
		t.Fatalf("pushed frame = %+v", pushed)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t, "")
	var out map[string]string
	resp := do(t, http.MethodGet, ts.URL+"/ws/sessions/nope", "", &out)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStaticAssets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>concerts</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, dir)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
