package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parlorhq/parlor/internal/core"
)

type memoryConversationStore struct {
	mu        sync.Mutex
	states    map[string]*core.ConversationState
	getErr    error
	upsertErr error
	upserts   int
}

func newMemoryConversationStore() *memoryConversationStore {
	return &memoryConversationStore{states: make(map[string]*core.ConversationState)}
}

func (m *memoryConversationStore) GetConversation(ctx context.Context, userID string) (*core.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.states[userID].Clone(), nil
}

func (m *memoryConversationStore) UpsertConversation(ctx context.Context, state *core.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.states[state.UserID] = state.Clone()
	return nil
}

func (m *memoryConversationStore) ResetConversation(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[userID]
	delete(m.states, userID)
	return ok, nil
}

func (m *memoryConversationStore) state(userID string) *core.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID].Clone()
}

// scriptedGenerator returns queued replies in order, then its fallback.
type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	fallback string
	err      error
	prompts  []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)

	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(g.replies) > 0 {
		reply := g.replies[0]
		g.replies = g.replies[1:]
		return reply, nil
	}
	if g.err != nil {
		return "", g.err
	}
	return g.fallback, nil
}

func (g *scriptedGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type plainPrompts struct{}

func (plainPrompts) ReplyPrompt(summary, message string) (string, error) {
	return fmt.Sprintf("reply|%s|%s", summary, message), nil
}

func (plainPrompts) CompactionPrompt(summary, buffer string, wordCap int) (string, error) {
	return fmt.Sprintf("compact|%d|%s|%s", wordCap, summary, buffer), nil
}

type recordedAlert struct {
	subject string
	body    string
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (a *alertRecorder) Alert(subject, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, recordedAlert{subject: subject, body: body})
}

func (a *alertRecorder) all() []recordedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedAlert(nil), a.alerts...)
}

var errBackendDown = errors.New("backend down")
