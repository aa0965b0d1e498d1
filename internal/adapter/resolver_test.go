package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/connector"
	"github.com/teamsbridge/teamsbridge/internal/models"
	"github.com/teamsbridge/teamsbridge/internal/state"
	"github.com/teamsbridge/teamsbridge/internal/storage"
)

// postedActivity is one activity the fake Connector received.
type postedActivity struct {
	path     string
	activity models.Activity
}

// testEnv wires an adapter against a fake Connector and an in-memory
// store, recording callback dispatches and outbound posts.
type testEnv struct {
	adapter *Adapter
	state   *state.State
	srv     *httptest.Server

	memberFetches atomic.Int64

	mu       sync.Mutex
	messages []*models.Message
	posted   []postedActivity
}

func (e *testEnv) callback(_ context.Context, msg *models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func (e *testEnv) postedActivities() []postedActivity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]postedActivity(nil), e.posted...)
}

func (e *testEnv) dispatched() []*models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*models.Message(nil), e.messages...)
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{}

	roster := []models.ChannelAccount{
		{ID: "user-1", Name: "Ada Lovelace", UserPrincipalName: "ada@example.com", Email: "ada@example.com"},
		{ID: "user-2", Name: "Grace Hopper", UserPrincipalName: "grace@example.com", Email: "grace@example.com"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/conversations/{conv}/members", func(w http.ResponseWriter, r *http.Request) {
		env.memberFetches.Add(1)
		json.NewEncoder(w).Encode(roster)
	})
	mux.HandleFunc("GET /v3/conversations/{conv}/members/{ref}", func(w http.ResponseWriter, r *http.Request) {
		for _, m := range roster {
			if m.ID == r.PathValue("ref") || m.Email == r.PathValue("ref") {
				json.NewEncoder(w).Encode(m)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("POST /v3/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "conv-new"})
	})
	recordPost := func(w http.ResponseWriter, r *http.Request, id string) {
		var act models.Activity
		if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		env.mu.Lock()
		env.posted = append(env.posted, postedActivity{path: r.URL.Path, activity: act})
		env.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	}
	mux.HandleFunc("POST /v3/conversations/{conv}/activities", func(w http.ResponseWriter, r *http.Request) {
		recordPost(w, r, "out-1")
	})
	mux.HandleFunc("POST /v3/conversations/{conv}/activities/{id}", func(w http.ResponseWriter, r *http.Request) {
		recordPost(w, r, "out-2")
	})

	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)

	env.state = state.New(storage.NewMemoryStore())
	conn := connector.New(nil, env.state, zerolog.Nop())

	env.adapter = New("app-1", env.state, conn, zerolog.Nop(), env.callback,
		append([]Option{WithServiceURL(env.srv.URL)}, opts...)...)
	return env
}

func (e *testEnv) post(t *testing.T, activity models.Activity) *httptest.ResponseRecorder {
	t.Helper()
	if activity.ServiceURL == "" {
		activity.ServiceURL = e.srv.URL
	}
	body, err := json.Marshal(activity)
	if err != nil {
		t.Fatalf("marshal activity: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/botframework", bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.adapter.HandleActivity(w, req)
	return w
}

func personalActivity(text string) models.Activity {
	return models.Activity{
		Type:      models.ActivityMessage,
		ID:        "act-1",
		From:      &models.ChannelAccount{ID: "user-1", Name: "Ada Lovelace"},
		Recipient: &models.ChannelAccount{ID: "28:app-1", Name: "Bridge"},
		Conversation: &models.Conversation{
			ID:               "a:1personal",
			ConversationType: models.ConversationPersonal,
			TenantID:         "tenant-1",
		},
		Text: text,
	}
}

func channelActivity(text string) models.Activity {
	return models.Activity{
		Type:      models.ActivityMessage,
		ID:        "act-2",
		From:      &models.ChannelAccount{ID: "user-1", Name: "Ada Lovelace"},
		Recipient: &models.ChannelAccount{ID: "28:app-1", Name: "Bridge"},
		Conversation: &models.Conversation{
			ID:               "19:room;messageid=1234",
			ConversationType: models.ConversationChannel,
			TenantID:         "tenant-1",
		},
		Text: text,
	}
}

func TestPersonalMessageDispatched(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, personalActivity("hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	msgs := env.dispatched()
	if len(msgs) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Body != "hello" {
		t.Errorf("body = %q", msg.Body)
	}

	from, ok := msg.From.(models.Person)
	if !ok {
		t.Fatalf("from = %T, want Person", msg.From)
	}
	if from.Key() != "@user-1" {
		t.Errorf("from key = %q", from.Key())
	}
	// The roster record enriches the payload account.
	if from.Email != "ada@example.com" {
		t.Errorf("from email = %q, want roster enrichment", from.Email)
	}

	to, ok := msg.To.(models.Person)
	if !ok {
		t.Fatalf("to = %T, want Person", msg.To)
	}
	if to.Key() != "@28:app-1" {
		t.Errorf("to key = %q", to.Key())
	}
}

func TestPersonalMessageBootstrapsBotAccount(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.state.BotAccount(); !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("expected no bot account before first contact, got %v", err)
	}

	env.post(t, personalActivity("hello"))

	bot, err := env.state.BotAccount()
	if err != nil {
		t.Fatalf("BotAccount: %v", err)
	}
	if bot.ID != "28:app-1" {
		t.Errorf("bot id = %q", bot.ID)
	}
}

func TestPersonalConversationPersisted(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, personalActivity("hello"))

	conv, err := env.state.PersonalConversation("user-1")
	if err != nil {
		t.Fatalf("PersonalConversation: %v", err)
	}
	if conv.ID != "a:1personal" {
		t.Errorf("conversation id = %q", conv.ID)
	}
}

func TestChannelMessageWrapsOccupants(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, channelActivity("<at>Bridge</at> deploy it"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	msgs := env.dispatched()
	if len(msgs) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Body != "deploy it" {
		t.Errorf("body = %q, want mention stripped", msg.Body)
	}

	from, ok := msg.From.(models.RoomOccupant)
	if !ok {
		t.Fatalf("from = %T, want RoomOccupant", msg.From)
	}
	if from.Key() != "#19:room/@user-1" {
		t.Errorf("from key = %q", from.Key())
	}
	if from.Room.TenantID != "tenant-1" {
		t.Errorf("room tenant = %q", from.Room.TenantID)
	}

	// The recorded conversation is normalized to the room id so later
	// replies do not inherit this message's thread reference.
	conv, err := env.state.ChannelConversation("19:room")
	if err != nil {
		t.Fatalf("ChannelConversation: %v", err)
	}
	if conv.ID != "19:room" {
		t.Errorf("stored conversation id = %q", conv.ID)
	}
}

func TestUnknownConversationTypeDropped(t *testing.T) {
	env := newTestEnv(t)

	act := personalActivity("hello")
	act.Conversation.ConversationType = "carrierPigeon"

	w := env.post(t, act)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := len(env.dispatched()); got != 0 {
		t.Errorf("dispatched %d messages, want 0", got)
	}
}

func TestMissingParticipantsRejected(t *testing.T) {
	env := newTestEnv(t)

	act := personalActivity("hello")
	act.From = nil

	w := env.post(t, act)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/botframework", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	env.adapter.HandleActivity(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConversationUpdateInvalidatesRoster(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, channelActivity("one"))
	env.post(t, channelActivity("two"))
	if got := env.memberFetches.Load(); got != 1 {
		t.Fatalf("member fetches = %d, want 1 while cache is fresh", got)
	}

	env.post(t, models.Activity{
		Type:         models.ActivityConversationUpdate,
		Conversation: &models.Conversation{ID: "19:room;messageid=99", ConversationType: models.ConversationChannel},
		MembersAdded: []models.ChannelAccount{{ID: "user-3"}},
	})

	env.post(t, channelActivity("three"))
	if got := env.memberFetches.Load(); got != 2 {
		t.Errorf("member fetches = %d, want 2 after invalidation", got)
	}
}

func TestConversationUpdateWithoutChangesKeepsRoster(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, channelActivity("one"))
	env.post(t, models.Activity{
		Type:         models.ActivityConversationUpdate,
		Conversation: &models.Conversation{ID: "19:room", ConversationType: models.ConversationChannel},
	})
	env.post(t, channelActivity("two"))

	if got := env.memberFetches.Load(); got != 1 {
		t.Errorf("member fetches = %d, want 1", got)
	}
}

func TestCommandPrefixTriggersTypingFeedback(t *testing.T) {
	env := newTestEnv(t, WithCommandPrefix("!"))

	env.post(t, personalActivity("!status"))

	var typed bool
	for _, p := range env.postedActivities() {
		if p.activity.Type == models.ActivityTyping {
			typed = true
		}
	}
	if !typed {
		t.Error("expected a typing activity before dispatch")
	}
	if got := len(env.dispatched()); got != 1 {
		t.Errorf("dispatched %d messages, want 1", got)
	}
}

func TestNonCommandSkipsTypingFeedback(t *testing.T) {
	env := newTestEnv(t, WithCommandPrefix("!"))

	env.post(t, personalActivity("just chatting"))

	if got := len(env.postedActivities()); got != 0 {
		t.Errorf("posted %d activities, want 0", got)
	}
}

func TestUnknownActivityTypeAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, models.Activity{Type: "messageReaction"})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := len(env.dispatched()); got != 0 {
		t.Errorf("dispatched %d messages, want 0", got)
	}
}

func TestRateLimitDropsExcessMessages(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(1, time.Minute))

	env.post(t, personalActivity("one"))
	w := env.post(t, personalActivity("two"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for dropped message", w.Code)
	}
	if got := len(env.dispatched()); got != 1 {
		t.Errorf("dispatched %d messages, want 1", got)
	}
}

func TestServiceURLPersistedOnce(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, personalActivity("hello"))

	url, err := env.state.ServiceURL("")
	if err != nil {
		t.Fatalf("ServiceURL: %v", err)
	}
	if url != env.srv.URL {
		t.Errorf("service url = %q, want %q", url, env.srv.URL)
	}

	act := personalActivity("again")
	act.ServiceURL = "https://smba.example.com/other/"
	env.post(t, act)

	url, _ = env.state.ServiceURL("")
	if url != env.srv.URL {
		t.Errorf("service url = %q, want first report kept", url)
	}
}
