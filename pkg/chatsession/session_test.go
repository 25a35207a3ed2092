package chatsession

import (
	"context"
	"errors"
	"sync"
	"testing"

	"groovie/pkg/apiclient"
	"groovie/pkg/domain"
)

type call struct {
	mode domain.ChatMode
	req  apiclient.ChatRequest
}

// fakeTransport answers immediately unless gate is set, in which case every
// send waits for a value on gate.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	resp    apiclient.ChatResponse
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeTransport) SendChat(ctx context.Context, mode domain.ChatMode, req apiclient.ChatRequest) (apiclient.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{mode: mode, req: req})
	gate, started := f.gate, f.started
	resp, err := f.resp, f.err
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apiclient.ChatResponse{}, ctx.Err()
		}
	}
	if err != nil {
		return apiclient.ChatResponse{}, err
	}
	if resp.Content == "" && resp.Message == "" && resp.ConversationID == "" {
		return apiclient.ChatResponse{Content: "re: " + req.Message, ConversationID: "c-1", MessageID: "m-" + req.Message}, nil
	}
	return resp, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newSession(t *testing.T, tr *fakeTransport, opts Options) *Session {
	t.Helper()
	opts.Transport = tr
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without transport")
	}
	if _, err := New(Options{Transport: &fakeTransport{}, InitialMode: "admin"}); err == nil {
		t.Fatalf("expected error for unknown initial mode")
	}
}

func TestInitialState(t *testing.T) {
	s := newSession(t, &fakeTransport{}, Options{})
	st := s.Snapshot()
	if st.CurrentMode != domain.ModeReadingResource || st.IsLoading || st.Error != "" || len(st.Messages) != 0 || st.Messages == nil {
		t.Fatalf("unexpected initial state: %+v", st)
	}
}

func TestSendMessageSkipsBlankInput(t *testing.T) {
	tr := &fakeTransport{}
	var changes int
	s := newSession(t, tr, Options{OnChange: func(State) { changes++ }})
	for _, in := range []string{"", "   ", "\n\t"} {
		if err := s.SendMessage(context.Background(), in); err != nil {
			t.Fatalf("blank input returned %v", err)
		}
	}
	if tr.callCount() != 0 || changes != 0 || len(s.Snapshot().Messages) != 0 {
		t.Fatalf("blank input changed state: calls=%d changes=%d", tr.callCount(), changes)
	}
}

func TestSendMessageSuccess(t *testing.T) {
	tr := &fakeTransport{resp: apiclient.ChatResponse{
		Content:        "Here is a plan",
		ConversationID: "c-9",
		MessageID:      "m-9",
		Artifacts:      []domain.Artifact{{ID: "a-1", Type: domain.ArtifactLessonPlan}},
	}}
	var states []State
	s := newSession(t, tr, Options{InitialMode: domain.ModeTeachingAssistant, OnChange: func(st State) { states = append(states, st) }})

	if err := s.SendMessage(context.Background(), "  plan a lesson  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	st := s.Snapshot()
	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", st.Messages)
	}
	user, reply := st.Messages[0], st.Messages[1]
	if user.Role != domain.RoleUser || user.Content != "plan a lesson" || user.Mode != domain.ModeTeachingAssistant || user.ID == "" {
		t.Fatalf("unexpected user message: %+v", user)
	}
	if reply.Role != domain.RoleAssistant || reply.Content != "Here is a plan" || reply.ID != "m-9" || len(reply.Artifacts) != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if st.IsLoading || st.Error != "" || st.ConversationID != "c-9" {
		t.Fatalf("unexpected final state: %+v", st)
	}

	if len(states) != 2 || !states[0].IsLoading || len(states[0].Messages) != 1 {
		t.Fatalf("expected optimistic loading state first, got %+v", states)
	}
	req := tr.calls[0]
	if req.mode != domain.ModeTeachingAssistant || req.req.Message != "plan a lesson" || req.req.ConversationID != "temp" {
		t.Fatalf("unexpected request: %+v", req)
	}

	if err := s.SendMessage(context.Background(), "again"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if tr.calls[1].req.ConversationID != "c-9" {
		t.Fatalf("session did not adopt conversation id: %+v", tr.calls[1])
	}
}

func TestReplyContentFallbacks(t *testing.T) {
	tests := []struct {
		name string
		resp apiclient.ChatResponse
		want string
	}{
		{name: "message field", resp: apiclient.ChatResponse{Message: "from message", ConversationID: "c"}, want: "from message"},
		{name: "empty body", resp: apiclient.ChatResponse{ConversationID: "c"}, want: "No response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newSession(t, &fakeTransport{resp: tc.resp}, Options{})
			if err := s.SendMessage(context.Background(), "hi"); err != nil {
				t.Fatalf("send: %v", err)
			}
			if got := s.Snapshot().Messages[1].Content; got != tc.want {
				t.Fatalf("content = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSendMessageFailureKeepsUserMessage(t *testing.T) {
	sendErr := &apiclient.APIError{Status: 500, Message: "API error: 500"}
	var gotErr error
	s := newSession(t, &fakeTransport{err: sendErr}, Options{OnError: func(err error) { gotErr = err }})

	err := s.SendMessage(context.Background(), "hello")
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	st := s.Snapshot()
	if st.Error != "API error: 500" || st.IsLoading {
		t.Fatalf("unexpected state: %+v", st)
	}
	if len(st.Messages) != 1 || st.Messages[0].Content != "hello" {
		t.Fatalf("user message should stay: %+v", st.Messages)
	}
	if gotErr != sendErr {
		t.Fatalf("OnError not invoked with the error: %v", gotErr)
	}

	// The next send clears the previous error.
	s2 := newSession(t, &fakeTransport{}, Options{})
	s2.state.Error = "old"
	if err := s2.SendMessage(context.Background(), "retry"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if s2.Snapshot().Error != "" {
		t.Fatalf("error not cleared on send")
	}
}

func TestSwitchModeKeepsMessages(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(t, tr, Options{})
	if err := s.SendMessage(context.Background(), "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.SwitchMode(domain.ModeMagicLibrarian); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := s.SwitchMode("admin"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	st := s.Snapshot()
	if st.CurrentMode != domain.ModeMagicLibrarian || len(st.Messages) != 2 {
		t.Fatalf("unexpected state after switch: %+v", st)
	}
	if err := s.SendMessage(context.Background(), "two"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tr.calls[1].mode != domain.ModeMagicLibrarian {
		t.Fatalf("send used stale mode: %+v", tr.calls[1])
	}
	if got := s.MessagesForMode(domain.ModeReadingResource); len(got) != 2 {
		t.Fatalf("expected 2 reading-resource messages, got %d", len(got))
	}
	if got := s.MessagesForMode(domain.ModeMagicLibrarian); len(got) != 2 || got[0].Content != "two" {
		t.Fatalf("unexpected magic-librarian messages: %+v", got)
	}
}

func TestClearMessagesLeavesModeAndLoading(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newSession(t, tr, Options{InitialMode: domain.ModeMagicLibrarian})

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "story") }()
	<-tr.started

	s.ClearMessages()
	st := s.Snapshot()
	if len(st.Messages) != 0 || st.Error != "" || !st.IsLoading || st.CurrentMode != domain.ModeMagicLibrarian {
		t.Fatalf("unexpected state after clear: %+v", st)
	}

	close(tr.gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	st = s.Snapshot()
	if len(st.Messages) != 0 {
		t.Fatalf("reply from before clear must be dropped: %+v", st.Messages)
	}
	if st.IsLoading || st.ConversationID != "" {
		t.Fatalf("unexpected final state: %+v", st)
	}
}

func TestStaleFailureAfterModeSwitchIsNotRecorded(t *testing.T) {
	tr := &fakeTransport{err: errors.New("boom"), gate: make(chan struct{}), started: make(chan struct{}, 1)}
	var onErr int
	s := newSession(t, tr, Options{OnError: func(error) { onErr++ }})

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "hi") }()
	<-tr.started
	if err := s.SwitchMode(domain.ModeTeachingAssistant); err != nil {
		t.Fatalf("switch: %v", err)
	}
	close(tr.gate)
	if err := <-done; err == nil {
		t.Fatalf("caller should still see the error")
	}
	if st := s.Snapshot(); st.Error != "" || st.IsLoading {
		t.Fatalf("stale failure leaked into state: %+v", st)
	}
	if onErr != 0 {
		t.Fatalf("OnError should not fire for stale sends")
	}
}

func TestStaleReplyAfterModeSwitchIsDropped(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newSession(t, tr, Options{})

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "frogs") }()
	<-tr.started
	if err := s.SwitchMode(domain.ModeMagicLibrarian); err != nil {
		t.Fatalf("switch: %v", err)
	}
	close(tr.gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	st := s.Snapshot()
	if len(st.Messages) != 1 || st.Messages[0].Role != domain.RoleUser {
		t.Fatalf("reply from before the mode switch must be dropped: %+v", st.Messages)
	}
	if st.ConversationID != "" {
		t.Fatalf("stale reply conversation adopted: %q", st.ConversationID)
	}
	if st.IsLoading || st.CurrentMode != domain.ModeMagicLibrarian {
		t.Fatalf("unexpected final state: %+v", st)
	}
}

func TestConcurrentSendsKeepLoadingUntilLastReturns(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{}), started: make(chan struct{}, 2)}
	s := newSession(t, tr, Options{})

	done := make(chan error, 2)
	go func() { done <- s.SendMessage(context.Background(), "a") }()
	go func() { done <- s.SendMessage(context.Background(), "b") }()
	<-tr.started
	<-tr.started

	tr.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if !s.Snapshot().IsLoading {
		t.Fatalf("loading must stay true while a send is outstanding")
	}
	tr.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	st := s.Snapshot()
	if st.IsLoading || len(st.Messages) != 4 {
		t.Fatalf("unexpected final state: %+v", st)
	}
}

func TestRejectConcurrent(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newSession(t, tr, Options{Policy: RejectConcurrent})

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "first") }()
	<-tr.started

	if err := s.SendMessage(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if st := s.Snapshot(); len(st.Messages) != 1 {
		t.Fatalf("rejected send must not change messages: %+v", st.Messages)
	}
	close(tr.gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if tr.callCount() != 1 {
		t.Fatalf("expected one transport call, got %d", tr.callCount())
	}
}

func TestLoadConversation(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(t, tr, Options{})
	conv := domain.Conversation{ID: "c-7", Messages: []domain.Message{
		{ID: "m-1", Content: "earlier", Role: domain.RoleUser, Mode: domain.ModeReadingResource},
	}}
	s.LoadConversation(conv)
	conv.Messages[0].Content = "mutated"

	st := s.Snapshot()
	if st.ConversationID != "c-7" || len(st.Messages) != 1 || st.Messages[0].Content != "earlier" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if err := s.SendMessage(context.Background(), "more"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tr.calls[0].req.ConversationID != "c-7" {
		t.Fatalf("send did not continue loaded conversation: %+v", tr.calls[0])
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newSession(t, &fakeTransport{resp: apiclient.ChatResponse{Content: "x", Artifacts: []domain.Artifact{{ID: "a"}}}}, Options{})
	if err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := s.Snapshot()
	snap.Messages[0].Content = "changed"
	snap.Messages[1].Artifacts[0].ID = "changed"
	st := s.Snapshot()
	if st.Messages[0].Content != "hi" || st.Messages[1].Artifacts[0].ID != "a" {
		t.Fatalf("snapshot shares state: %+v", st.Messages)
	}
}
