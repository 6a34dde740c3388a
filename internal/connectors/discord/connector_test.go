package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/dwizi/einstein/internal/mention"
	"github.com/dwizi/einstein/internal/prompts"
	"github.com/dwizi/einstein/internal/threadctx"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type apiRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *apiRecorder) add(req *http.Request) {
	entry := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Auth: req.Header.Get("Authorization")}
	raw, _ := io.ReadAll(req.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &entry.Body)
	}
	r.mu.Lock()
	r.requests = append(r.requests, entry)
	r.mu.Unlock()
}

func (r *apiRecorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func (r *apiRecorder) byPrefix(method, prefix string) []recordedRequest {
	var matched []recordedRequest
	for _, req := range r.all() {
		if req.Method == method && strings.HasPrefix(req.Path, prefix) {
			matched = append(matched, req)
		}
	}
	return matched
}

type fakeHandler struct {
	mu       sync.Mutex
	events   []mention.Event
	commands []mention.CommandRequest
	answer   []string
}

func (f *fakeHandler) Handle(ctx context.Context, event mention.Event) mention.Outcome {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return mention.Outcome{State: mention.StateReplied}
}

func (f *fakeHandler) HandleCommand(ctx context.Context, req mention.CommandRequest, replier mention.Replier) mention.Outcome {
	f.mu.Lock()
	f.commands = append(f.commands, req)
	answer := append([]string(nil), f.answer...)
	f.mu.Unlock()
	for _, chunk := range answer {
		if err := replier.Reply(ctx, chunk); err != nil {
			return mention.Outcome{State: mention.StateFailed, Err: err}
		}
	}
	return mention.Outcome{State: mention.StateReplied, Replies: len(answer)}
}

type staticTexts struct{}

func (staticTexts) HelpText() string    { return "Use /einstein to ask." }
func (staticTexts) WelcomeText() string { return "Hello server!" }

func mentionTarget(channelID, messageID string) threadctx.Message {
	return threadctx.Message{ID: messageID, ChannelID: channelID}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *apiRecorder) {
	t.Helper()
	recorder := &apiRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder.add(req)
		if handler != nil {
			handler(w, req)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)
	return server, recorder
}

func TestFetchMessageMapsReplyReferenceAndAuthor(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "m2",
			"channel_id": "c1",
			"content":    "what about gravity?",
			"author":     map[string]any{"id": "u1", "username": "alice", "global_name": "Alice A"},
			"message_reference": map[string]any{
				"message_id": "m1",
				"channel_id": "c1",
			},
		})
	})
	connector := New("bot-token", server.URL, "", testLogger())

	message, err := connector.FetchMessage(context.Background(), "c1", "m2")
	if err != nil {
		t.Fatalf("fetch message: %v", err)
	}
	if message.ReferenceID != "m1" || message.Content != "what about gravity?" {
		t.Fatalf("unexpected message %+v", message)
	}
	if message.Author.Label() != "Alice A" {
		t.Fatalf("expected global name label, got %q", message.Author.Label())
	}
	requests := recorder.all()
	if len(requests) != 1 || requests[0].Path != "/channels/c1/messages/m2" {
		t.Fatalf("unexpected requests %+v", requests)
	}
	if requests[0].Auth != "Bot bot-token" {
		t.Fatalf("expected bot auth header, got %q", requests[0].Auth)
	}
}

func TestFetchMessageMapsStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{status: http.StatusNotFound, want: ErrNotFound},
		{status: http.StatusForbidden, want: ErrForbidden},
		{status: http.StatusTooManyRequests, want: ErrRateLimited},
	}
	for _, tc := range cases {
		server, _ := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		connector := New("bot-token", server.URL, "", testLogger())
		_, err := connector.FetchMessage(context.Background(), "c1", "m1")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestReplyReferencesTargetAndSuppressesPings(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger())

	err := connector.Reply(context.Background(), mentionTarget("c9", "m9"), "E = mc^2")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	posts := recorder.byPrefix(http.MethodPost, "/channels/c9/messages")
	if len(posts) != 1 {
		t.Fatalf("expected one post, got %+v", recorder.all())
	}
	body := posts[0].Body
	if body["content"] != "E = mc^2" {
		t.Fatalf("unexpected content %v", body["content"])
	}
	reference, _ := body["message_reference"].(map[string]any)
	if reference["message_id"] != "m9" {
		t.Fatalf("expected reply reference, got %v", body["message_reference"])
	}
	allowed, _ := body["allowed_mentions"].(map[string]any)
	if parse, _ := allowed["parse"].([]any); len(parse) != 0 {
		t.Fatalf("expected no parsed mentions, got %v", allowed)
	}
}

func TestTypingPostsToChannel(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	connector := New("bot-token", server.URL, "", testLogger())
	if err := connector.Typing(context.Background(), "c3"); err != nil {
		t.Fatalf("typing: %v", err)
	}
	if posts := recorder.byPrefix(http.MethodPost, "/channels/c3/typing"); len(posts) != 1 {
		t.Fatalf("expected typing post, got %+v", recorder.all())
	}
}

func TestDispatchMessageCreateBuildsMentionEvent(t *testing.T) {
	handler := &fakeHandler{}
	connector := New("bot-token", "http://discord.invalid", "", testLogger())
	connector.SetHandler(handler)

	payload := `{
		"id": "m5",
		"channel_id": "c5",
		"guild_id": "g5",
		"content": "<@bot-1> why is the sky blue?",
		"author": {"id": "u5", "username": "bob"},
		"member": {"nick": "Bobby"},
		"mentions": [{"id": "bot-1"}],
		"mention_roles": ["r1"],
		"referenced_message": {"id": "m4"}
	}`
	connector.dispatch(context.Background(), "MESSAGE_CREATE", json.RawMessage(payload))
	connector.inflight.Wait()

	if len(handler.events) != 1 {
		t.Fatalf("expected one event, got %d", len(handler.events))
	}
	event := handler.events[0]
	if event.Message.ReferenceID != "m4" || event.Message.Author.Label() != "Bobby" {
		t.Fatalf("unexpected message %+v", event.Message)
	}
	if len(event.MentionedUserIDs) != 1 || event.MentionedUserIDs[0] != "bot-1" {
		t.Fatalf("unexpected mentions %v", event.MentionedUserIDs)
	}
	if len(event.RoleMentionIDs) != 1 {
		t.Fatalf("unexpected role mentions %v", event.RoleMentionIDs)
	}
}

type panickingHandler struct{ fakeHandler }

func (p *panickingHandler) Handle(ctx context.Context, event mention.Event) mention.Outcome {
	panic("boom")
}

func TestDispatchIsolatesPanickingTask(t *testing.T) {
	connector := New("bot-token", "http://discord.invalid", "", testLogger())
	connector.SetHandler(&panickingHandler{})

	connector.dispatch(context.Background(), "MESSAGE_CREATE", json.RawMessage(`{"id":"m1","channel_id":"c1","content":"hi"}`))
	connector.inflight.Wait()
}

func TestReadyCapturesBotUserAndSuppressesExistingGuildWelcome(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithTexts(staticTexts{}))

	connector.dispatch(context.Background(), "READY", json.RawMessage(`{"user":{"id":"bot-1"},"guilds":[{"id":"g-old","unavailable":true}]}`))
	if connector.BotUserID() != "bot-1" {
		t.Fatalf("expected bot id from READY, got %q", connector.BotUserID())
	}

	connector.dispatch(context.Background(), "GUILD_CREATE", json.RawMessage(`{"id":"g-old","system_channel_id":"sys-old"}`))
	connector.dispatch(context.Background(), "GUILD_CREATE", json.RawMessage(`{"id":"g-new","system_channel_id":"sys-new"}`))
	connector.inflight.Wait()
	connector.dispatch(context.Background(), "GUILD_CREATE", json.RawMessage(`{"id":"g-new","system_channel_id":"sys-new"}`))
	connector.inflight.Wait()

	if posts := recorder.byPrefix(http.MethodPost, "/channels/sys-old/"); len(posts) != 0 {
		t.Fatalf("expected no welcome for existing guild, got %+v", posts)
	}
	posts := recorder.byPrefix(http.MethodPost, "/channels/sys-new/messages")
	if len(posts) != 1 {
		t.Fatalf("expected exactly one welcome, got %+v", recorder.all())
	}
	if posts[0].Body["content"] != "Hello server!" {
		t.Fatalf("unexpected welcome %v", posts[0].Body["content"])
	}
}

func TestHelpInteractionRespondsImmediately(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithTexts(staticTexts{}))
	connector.SetHandler(&fakeHandler{})

	err := connector.handleInteractionCreate(context.Background(), discordInteractionCreate{
		ID:    "i1",
		Type:  interactionTypeCommand,
		Token: "tok",
		Data:  discordInteractionData{Name: "help"},
	})
	if err != nil {
		t.Fatalf("help interaction: %v", err)
	}
	callbacks := recorder.byPrefix(http.MethodPost, "/interactions/i1/tok/callback")
	if len(callbacks) != 1 {
		t.Fatalf("expected one callback, got %+v", recorder.all())
	}
	if callbacks[0].Auth != "" {
		t.Fatalf("interaction callbacks are unauthenticated, got %q", callbacks[0].Auth)
	}
	data, _ := callbacks[0].Body["data"].(map[string]any)
	if callbacks[0].Body["type"] != float64(responseChannelMessage) || data["content"] != "Use /einstein to ask." {
		t.Fatalf("unexpected callback %+v", callbacks[0].Body)
	}
}

func TestEinsteinInteractionDefersAndFollowsUp(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	handler := &fakeHandler{answer: []string{"part one", "part two"}}
	connector := New("bot-token", server.URL, "", testLogger())
	connector.SetHandler(handler)

	err := connector.handleInteractionCreate(context.Background(), discordInteractionCreate{
		ID:            "i2",
		ApplicationID: "app-1",
		Type:          interactionTypeCommand,
		Token:         "tok2",
		ChannelID:     "c2",
		Member:        discordMember{User: discordAuthor{ID: "u2"}},
		Data: discordInteractionData{
			Name:    "einstein",
			Options: []discordInteractionOption{{Name: "question", Type: 3, Value: "what is light?"}},
		},
	})
	if err != nil {
		t.Fatalf("einstein interaction: %v", err)
	}
	callbacks := recorder.byPrefix(http.MethodPost, "/interactions/i2/tok2/callback")
	if len(callbacks) != 1 || callbacks[0].Body["type"] != float64(responseDeferred) {
		t.Fatalf("expected deferred callback, got %+v", callbacks)
	}
	if len(handler.commands) != 1 {
		t.Fatalf("expected one command, got %d", len(handler.commands))
	}
	command := handler.commands[0]
	if command.Command != "einstein" || command.UserID != "u2" || command.Prompt != "what is light?" {
		t.Fatalf("unexpected command request %+v", command)
	}
	followups := recorder.byPrefix(http.MethodPost, "/webhooks/app-1/tok2")
	if len(followups) != 2 || followups[0].Body["content"] != "part one" || followups[1].Body["content"] != "part two" {
		t.Fatalf("unexpected follow-ups %+v", followups)
	}
}

func TestSyncCommandsUsesGuildScopes(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithApplicationID("app-9"), WithCommandGuildIDs([]string{"g1", " g1 ", "g2"}))

	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("sync commands: %v", err)
	}
	puts := recorder.byPrefix(http.MethodPut, "/applications/app-9/guilds/")
	if len(puts) != 2 {
		t.Fatalf("expected two guild upserts, got %+v", recorder.all())
	}
}

func TestSyncCommandsResolvesApplicationID(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/oauth2/applications/@me" {
			_, _ = w.Write([]byte(`{"id":"app-7"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	connector := New("bot-token", server.URL, "", testLogger())

	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("sync commands: %v", err)
	}
	if puts := recorder.byPrefix(http.MethodPut, "/applications/app-7/commands"); len(puts) != 1 {
		t.Fatalf("expected global upsert, got %+v", recorder.all())
	}
}

func TestRunSessionIdentifiesAndDispatches(t *testing.T) {
	handler := &fakeHandler{}
	identified := make(chan map[string]any, 1)
	upgrader := websocket.Upgrader{}
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 45000}})
		var identify map[string]any
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}
		identified <- identify
		_ = conn.WriteJSON(map[string]any{"op": 0, "t": "READY", "s": 1, "d": map[string]any{"user": map[string]any{"id": "bot-1"}}})
		_ = conn.WriteJSON(map[string]any{"op": 0, "t": "MESSAGE_CREATE", "s": 2, "d": map[string]any{
			"id":         "m1",
			"channel_id": "c1",
			"content":    "<@bot-1> hi",
			"author":     map[string]any{"id": "u1"},
			"mentions":   []map[string]any{{"id": "bot-1"}},
		}})
		_ = conn.WriteJSON(map[string]any{"op": 7})
	}))
	defer gateway.Close()

	wsURL := "ws" + strings.TrimPrefix(gateway.URL, "http")
	connector := New("bot-token", "http://discord.invalid", wsURL, testLogger())
	connector.SetHandler(handler)

	err := connector.runSession(context.Background())
	if err == nil || !strings.Contains(err.Error(), "reconnect") {
		t.Fatalf("expected reconnect error, got %v", err)
	}
	connector.inflight.Wait()

	identify := <-identified
	if identify["op"] != float64(2) {
		t.Fatalf("expected identify op, got %v", identify["op"])
	}
	if connector.BotUserID() != "bot-1" {
		t.Fatalf("expected bot id, got %q", connector.BotUserID())
	}
	if len(handler.events) != 1 || handler.events[0].Message.ID != "m1" {
		t.Fatalf("expected dispatched message, got %+v", handler.events)
	}
}

func TestRecentMessagesListsChannelNewestFirst(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"m3","content":"latest","author":{"id":"u2","username":"bob"}},
			{"id":"m2","channel_id":"c4","content":"older","author":{"id":"u1","username":"ann","global_name":"Ann"}}
		]`))
	})
	connector := New("bot-token", server.URL, "", testLogger())

	messages, err := connector.RecentMessages(context.Background(), "c4", 500)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "m3" || messages[1].Author.Label() != "Ann" {
		t.Fatalf("unexpected messages %+v", messages)
	}
	if messages[0].ChannelID != "c4" {
		t.Fatalf("expected channel id filled in, got %q", messages[0].ChannelID)
	}
	gets := recorder.byPrefix(http.MethodGet, "/channels/c4/messages")
	if len(gets) != 1 || gets[0].Query != "limit=100" || gets[0].Auth != "Bot bot-token" {
		t.Fatalf("unexpected listing request %+v", recorder.all())
	}
}

func TestRecentMessagesMapsForbidden(t *testing.T) {
	server, _ := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	connector := New("bot-token", server.URL, "", testLogger())
	if _, err := connector.RecentMessages(context.Background(), "c4", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGuildCreateWelcomesFirstTextChannelWithoutSystemChannel(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithTexts(staticTexts{}))

	connector.dispatch(context.Background(), "READY", json.RawMessage(`{"user":{"id":"bot-1"},"guilds":[]}`))
	connector.dispatch(context.Background(), "GUILD_CREATE", json.RawMessage(`{
		"id":"g-new",
		"system_channel_id":null,
		"channels":[
			{"id":"voice","type":2,"position":0},
			{"id":"random","type":0,"position":2},
			{"id":"general","type":0,"position":1}
		]
	}`))
	connector.inflight.Wait()

	posts := recorder.byPrefix(http.MethodPost, "/channels/")
	if len(posts) != 1 || posts[0].Path != "/channels/general/messages" {
		t.Fatalf("expected one welcome in general, got %+v", recorder.all())
	}
}

func TestGuildCreateWelcomeSkipsForbiddenChannels(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/channels/sys/") || strings.HasPrefix(req.URL.Path, "/channels/rules/") {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"Missing Permissions"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	connector := New("bot-token", server.URL, "", testLogger(), WithTexts(staticTexts{}))

	err := connector.handleGuildCreate(context.Background(), discordGuildCreate{
		ID:              "g1",
		SystemChannelID: "sys",
		Channels: []discordChannel{
			{ID: "sys", Type: channelTypeGuildText, Position: 3},
			{ID: "rules", Type: channelTypeGuildText, Position: 0},
			{ID: "chat", Type: channelTypeGuildText, Position: 1},
		},
	})
	if err != nil {
		t.Fatalf("guild create: %v", err)
	}
	var paths []string
	for _, req := range recorder.byPrefix(http.MethodPost, "/channels/") {
		paths = append(paths, req.Path)
	}
	want := []string{"/channels/sys/messages", "/channels/rules/messages", "/channels/chat/messages"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected welcome attempts %v", paths)
	}
}

func TestGuildCreateWelcomeStopsOnOtherErrors(t *testing.T) {
	server, recorder := newAPIServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	connector := New("bot-token", server.URL, "", testLogger(), WithTexts(staticTexts{}))

	err := connector.handleGuildCreate(context.Background(), discordGuildCreate{
		ID:       "g1",
		Channels: []discordChannel{{ID: "a", Type: channelTypeGuildText}, {ID: "b", Type: channelTypeGuildText, Position: 1}},
	})
	if err == nil {
		t.Fatal("expected welcome error")
	}
	if posts := recorder.byPrefix(http.MethodPost, "/channels/"); len(posts) != 1 {
		t.Fatalf("expected a single attempt, got %+v", posts)
	}
}

func TestCommandInteractionsMapToRequests(t *testing.T) {
	cases := []struct {
		name    string
		options []discordInteractionOption
		want    mention.CommandRequest
	}{
		{
			name:    "summarize",
			options: []discordInteractionOption{{Name: "text", Type: 3, Value: " a long article "}},
			want:    mention.CommandRequest{Command: "summarize", Template: prompts.TemplateSummarize, Prompt: "a long article"},
		},
		{
			name:    "summarize",
			options: []discordInteractionOption{{Name: "messages", Type: 4, Value: float64(20)}},
			want:    mention.CommandRequest{Command: "summarize", Template: prompts.TemplateSummarize, RecentMessages: 20},
		},
		{
			name:    "factcheck",
			options: []discordInteractionOption{{Name: "statement", Type: 3, Value: "the moon is cheese"}},
			want:    mention.CommandRequest{Command: "factcheck", Template: prompts.TemplateFactCheck, Prompt: "the moon is cheese"},
		},
		{
			name: "factcheckhistory",
			want: mention.CommandRequest{Command: "factcheckhistory", Template: prompts.TemplateFactCheckHistory, RecentMessages: mention.DefaultRecentMessages},
		},
	}
	for _, tc := range cases {
		server, recorder := newAPIServer(t, nil)
		handler := &fakeHandler{answer: []string{"done"}}
		connector := New("bot-token", server.URL, "", testLogger())
		connector.SetHandler(handler)

		err := connector.handleInteractionCreate(context.Background(), discordInteractionCreate{
			ID:            "i5",
			ApplicationID: "app-1",
			Type:          interactionTypeCommand,
			Token:         "tok5",
			ChannelID:     "c5",
			User:          discordAuthor{ID: "u5"},
			Data:          discordInteractionData{Name: tc.name, Options: tc.options},
		})
		if err != nil {
			t.Fatalf("%s: interaction: %v", tc.name, err)
		}
		if len(handler.commands) != 1 {
			t.Fatalf("%s: expected one command, got %d", tc.name, len(handler.commands))
		}
		want := tc.want
		want.UserID, want.ChannelID = "u5", "c5"
		if handler.commands[0] != want {
			t.Fatalf("%s: got %+v want %+v", tc.name, handler.commands[0], want)
		}
		callbacks := recorder.byPrefix(http.MethodPost, "/interactions/i5/tok5/callback")
		if len(callbacks) != 1 || callbacks[0].Body["type"] != float64(responseDeferred) {
			t.Fatalf("%s: expected deferred callback, got %+v", tc.name, callbacks)
		}
		if followups := recorder.byPrefix(http.MethodPost, "/webhooks/app-1/tok5"); len(followups) != 1 {
			t.Fatalf("%s: expected one follow-up, got %+v", tc.name, followups)
		}
	}
}

func TestSyncInteractionRequiresManageGuild(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithApplicationID("app-1"))

	err := connector.handleInteractionCreate(context.Background(), discordInteractionCreate{
		ID:     "i6",
		Type:   interactionTypeCommand,
		Token:  "tok6",
		Member: discordMember{User: discordAuthor{ID: "u6"}, Permissions: "1024"},
		Data:   discordInteractionData{Name: "sync"},
	})
	if err != nil {
		t.Fatalf("sync interaction: %v", err)
	}
	if puts := recorder.byPrefix(http.MethodPut, "/applications/"); len(puts) != 0 {
		t.Fatalf("expected no command upsert, got %+v", puts)
	}
	callbacks := recorder.byPrefix(http.MethodPost, "/interactions/i6/tok6/callback")
	if len(callbacks) != 1 {
		t.Fatalf("expected one callback, got %+v", recorder.all())
	}
	data, _ := callbacks[0].Body["data"].(map[string]any)
	content, _ := data["content"].(string)
	if data["flags"] != float64(messageFlagEphemeral) || !strings.Contains(content, "Manage Server") {
		t.Fatalf("expected ephemeral refusal, got %+v", callbacks[0].Body)
	}
}

func TestSyncInteractionRegistersCommands(t *testing.T) {
	server, recorder := newAPIServer(t, nil)
	connector := New("bot-token", server.URL, "", testLogger(), WithApplicationID("app-1"))

	err := connector.handleInteractionCreate(context.Background(), discordInteractionCreate{
		ID:            "i7",
		ApplicationID: "app-1",
		Type:          interactionTypeCommand,
		Token:         "tok7",
		GuildID:       "g7",
		Member:        discordMember{User: discordAuthor{ID: "u7"}, Permissions: "32"},
		Data:          discordInteractionData{Name: "sync"},
	})
	if err != nil {
		t.Fatalf("sync interaction: %v", err)
	}
	callbacks := recorder.byPrefix(http.MethodPost, "/interactions/i7/tok7/callback")
	if len(callbacks) != 1 || callbacks[0].Body["type"] != float64(responseDeferred) {
		t.Fatalf("expected deferred callback, got %+v", callbacks)
	}
	if puts := recorder.byPrefix(http.MethodPut, "/applications/app-1/commands"); len(puts) != 1 {
		t.Fatalf("expected one command upsert, got %+v", recorder.all())
	}
	followups := recorder.byPrefix(http.MethodPost, "/webhooks/app-1/tok7")
	if len(followups) != 1 || followups[0].Body["flags"] != float64(messageFlagEphemeral) {
		t.Fatalf("expected ephemeral follow-up, got %+v", followups)
	}
	if content, _ := followups[0].Body["content"].(string); !strings.HasPrefix(content, "Synced ") {
		t.Fatalf("unexpected follow-up %v", followups[0].Body["content"])
	}
}

func TestCommandPayloadDescribesEveryCommand(t *testing.T) {
	payload := buildCommandPayload(slashCommands())
	byName := map[string]map[string]any{}
	for _, entry := range payload {
		byName[entry["name"].(string)] = entry
	}
	for _, name := range []string{"help", "einstein", "summarize", "factcheck", "factcheckhistory", "sync"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing command %s in %v", name, payload)
		}
	}
	if byName["sync"]["default_member_permissions"] != "32" {
		t.Fatalf("sync should default to managers, got %v", byName["sync"])
	}
	if _, restricted := byName["factcheck"]["default_member_permissions"]; restricted {
		t.Fatal("factcheck must be open to everyone")
	}
	options := byName["summarize"]["options"].([]map[string]any)
	if len(options) != 2 || options[0]["required"] != false || options[1]["type"] != optionTypeInteger || options[1]["max_value"] != mention.MaxRecentMessages {
		t.Fatalf("unexpected summarize options %v", options)
	}
	statement := byName["factcheck"]["options"].([]map[string]any)
	if len(statement) != 1 || statement[0]["name"] != "statement" || statement[0]["required"] != true {
		t.Fatalf("unexpected factcheck options %v", statement)
	}
}
