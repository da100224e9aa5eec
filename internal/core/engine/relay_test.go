package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/core"
)

type relayFixture struct {
	relay  *Relay
	store  *memoryConversationStore
	gen    *scriptedGenerator
	alerts *alertRecorder
	now    time.Time
}

func newRelayFixture(maxPerWindow int) *relayFixture {
	f := &relayFixture{
		store:  newMemoryConversationStore(),
		gen:    &scriptedGenerator{fallback: "reply"},
		alerts: &alertRecorder{},
		now:    epoch,
	}
	clock := func() time.Time { return f.now }

	limiter := NewRateLimiter(NewMemoryWindowStore(0), core.RateLimitPolicy{
		Window:       time.Minute,
		MaxPerWindow: maxPerWindow,
	})
	summarizer := newTestSummarizer(f.store, f.gen)
	summarizer.Clock = clock

	f.relay = &Relay{
		Limiter:    limiter,
		Summarizer: summarizer,
		Generator:  f.gen,
		Prompts:    plainPrompts{},
		Alerts:     f.alerts,
		Clock:      clock,
	}
	return f
}

func TestRelayHandleRecordsBothTurns(t *testing.T) {
	f := newRelayFixture(10)
	f.gen.replies = []string{"  hey there  "}

	reply, err := f.relay.Handle(context.Background(), "u1", "  hello  ")
	require.NoError(t, err)
	require.Equal(t, "hey there", reply)

	require.Equal(t, []string{"reply||hello"}, f.gen.calls())

	state := f.store.state("u1")
	require.Equal(t, []string{"User: hello\n", "Assistant: hey there\n"}, state.Buffer)
	require.Equal(t, 1, state.PendingCount)
	require.Empty(t, f.alerts.all())
}

func TestRelayReplyPromptUsesCurrentSummary(t *testing.T) {
	f := newRelayFixture(10)
	f.gen.replies = []string{"r1", "r2", "compacted", "r3"}
	ctx := context.Background()

	for _, msg := range []string{"hi", "how are you", "what's up"} {
		_, err := f.relay.Handle(ctx, "u1", msg)
		require.NoError(t, err)
	}

	calls := f.gen.calls()
	require.Len(t, calls, 4)
	require.True(t, strings.HasPrefix(calls[2], "compact|"))
	require.Equal(t, "reply|compacted|what's up", calls[3])

	state := f.store.state("u1")
	require.Equal(t, "compacted", state.Summary)
	require.Equal(t, []string{"Assistant: r3\n"}, state.Buffer)
	require.Zero(t, state.PendingCount)
}

func TestRelayRateLimitedTurnIsDroppedSilently(t *testing.T) {
	f := newRelayFixture(2)
	ctx := context.Background()

	_, err := f.relay.Handle(ctx, "u1", "one")
	require.NoError(t, err)
	f.now = epoch.Add(10 * time.Second)
	_, err = f.relay.Handle(ctx, "u1", "two")
	require.NoError(t, err)

	f.now = epoch.Add(20 * time.Second)
	reply, err := f.relay.Handle(ctx, "u1", "three")
	require.ErrorIs(t, err, core.ErrRateLimited)
	require.Empty(t, reply)
	require.Len(t, f.store.state("u1").Buffer, 4)
	require.Len(t, f.gen.calls(), 2)

	f.now = epoch.Add(61 * time.Second)
	_, err = f.relay.Handle(ctx, "u1", "four")
	require.NoError(t, err)
}

func TestRelayGenerationFailureKeepsUserTurnAndAlerts(t *testing.T) {
	f := newRelayFixture(10)
	f.gen.err = errBackendDown

	reply, err := f.relay.Handle(context.Background(), "u1", "hello")
	require.Empty(t, reply)
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	require.ErrorIs(t, err, core.ErrProvider)
	require.ErrorIs(t, err, errBackendDown)

	state := f.store.state("u1")
	require.Equal(t, []string{"User: hello\n"}, state.Buffer)
	require.Equal(t, 1, state.PendingCount)

	alerts := f.alerts.all()
	require.Len(t, alerts, 1)
	require.Equal(t, AlertGenerationFailure, alerts[0].subject)
	require.Contains(t, alerts[0].body, "user u1")
	require.Contains(t, alerts[0].body, "reply||hello")
	require.Contains(t, alerts[0].body, "backend down")
}

func TestRelayRepeatedFailuresStillCompact(t *testing.T) {
	f := newRelayFixture(10)
	// Reply calls fail; the compaction call on the third turn succeeds.
	f.gen.errs = []error{errBackendDown, errBackendDown, nil, errBackendDown}
	f.gen.replies = []string{"user-only summary"}

	for i := 0; i < 3; i++ {
		_, err := f.relay.Handle(context.Background(), "u1", fmt.Sprintf("m%d", i))
		require.ErrorIs(t, err, core.ErrGenerationFailed)
	}

	state := f.store.state("u1")
	require.Equal(t, "user-only summary", state.Summary)
	require.Empty(t, state.Buffer)
	require.Zero(t, state.PendingCount)
	require.Len(t, f.alerts.all(), 3)
}

func TestRelayTimeoutMapsToGenerationFailed(t *testing.T) {
	f := newRelayFixture(10)
	f.relay.Timeout = 10 * time.Millisecond
	f.relay.Generator = GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := f.relay.Handle(context.Background(), "u1", "hello")
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelayEmptyReplyIsFailure(t *testing.T) {
	f := newRelayFixture(10)
	f.gen.fallback = "  "

	_, err := f.relay.Handle(context.Background(), "u1", "hello")
	require.ErrorIs(t, err, core.ErrGenerationFailed)
	require.Len(t, f.store.state("u1").Buffer, 1)
}

func TestRelayRejectsEmptyMessage(t *testing.T) {
	f := newRelayFixture(1)

	_, err := f.relay.Handle(context.Background(), "u1", "   \n")
	require.ErrorIs(t, err, core.ErrInvalidMessage)

	_, err = f.relay.Handle(context.Background(), "", "hi")
	require.ErrorIs(t, err, core.ErrInvalidMessage)

	// Invalid messages do not consume the window.
	_, err = f.relay.Handle(context.Background(), "u1", "hi")
	require.NoError(t, err)
}

func TestRelayPersistenceErrorIsFatal(t *testing.T) {
	f := newRelayFixture(10)
	f.store.getErr = errors.New("db locked")

	_, err := f.relay.Handle(context.Background(), "u1", "hello")
	require.ErrorIs(t, err, core.ErrPersistence)
	require.Empty(t, f.gen.calls())
	require.Empty(t, f.alerts.all())
}

func TestRelayOnAdmitSeesAdmittedMessages(t *testing.T) {
	f := newRelayFixture(1)
	var seen []string
	f.relay.OnAdmit = func(userID, message string) {
		seen = append(seen, userID+":"+message)
	}

	_, err := f.relay.Handle(context.Background(), "u1", " send a photo ")
	require.NoError(t, err)
	_, err = f.relay.Handle(context.Background(), "u1", "again")
	require.ErrorIs(t, err, core.ErrRateLimited)

	require.Equal(t, []string{"u1:send a photo"}, seen)
}

func TestRelayResetWaitsForTurnInFlight(t *testing.T) {
	f := newRelayFixture(10)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.relay.Generator = GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		close(entered)
		<-release
		return "late reply", nil
	})

	turnDone := make(chan error, 1)
	go func() {
		_, err := f.relay.Handle(context.Background(), "u1", "hello")
		turnDone <- err
	}()
	<-entered

	resetDone := make(chan bool, 1)
	go func() {
		found, err := f.relay.ResetConversation(context.Background(), "u1")
		require.NoError(t, err)
		resetDone <- found
	}()

	select {
	case <-resetDone:
		t.Fatal("reset finished while a turn was still generating")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-turnDone)
	require.True(t, <-resetDone)
	require.Nil(t, f.store.state("u1"))

	state, err := f.relay.Conversation(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestRelayConversationUnknownUserIsNil(t *testing.T) {
	f := newRelayFixture(10)

	state, err := f.relay.Conversation(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, state)

	found, err := f.relay.ResetConversation(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRelaySerializesTurnsPerUser(t *testing.T) {
	f := newRelayFixture(1000)

	var mu sync.Mutex
	active := map[string]int{}
	maxActive := 0
	f.relay.Generator = GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		user := "alice"
		if strings.Contains(prompt, "bob") {
			user = "bob"
		}
		mu.Lock()
		active[user]++
		if active[user] > maxActive {
			maxActive = active[user]
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active[user]--
		mu.Unlock()
		return "ok " + user, nil
	})
	f.relay.Summarizer.Generator = GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "summary", nil
	})

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(user string, i int) {
				defer wg.Done()
				_, err := f.relay.Handle(context.Background(), user, fmt.Sprintf("%s %d", user, i))
				require.NoError(t, err)
			}(user, i)
		}
	}
	wg.Wait()

	require.Equal(t, 1, maxActive)
	require.Zero(t, f.relay.turns.Len())

	for _, user := range []string{"alice", "bob"} {
		state := f.store.state(user)
		other := "bob"
		if user == "bob" {
			other = "alice"
		}
		require.NotContains(t, state.BufferText(), other)
		require.NotContains(t, state.Summary, other)
	}
}
