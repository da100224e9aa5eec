package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/core"
)

func newTestSummarizer(store ConversationStore, gen Generator) *Summarizer {
	return &Summarizer{
		Store:     store,
		Generator: gen,
		Prompts:   plainPrompts{},
		Threshold: 3,
		WordCap:   300,
		Clock:     func() time.Time { return epoch },
	}
}

func TestSummarizerCompactsAtThreshold(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "they said hello"}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	summary, err := s.Record(ctx, "u1", "one", core.RoleUser)
	require.NoError(t, err)
	require.Empty(t, summary)

	summary, err = s.Record(ctx, "u1", "two", core.RoleUser)
	require.NoError(t, err)
	require.Empty(t, summary)
	require.Empty(t, gen.calls())
	require.Equal(t, 2, store.state("u1").PendingCount)

	summary, err = s.Record(ctx, "u1", "three", core.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "they said hello", summary)

	calls := gen.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "compact|300||User: one\nUser: two\nUser: three\n", calls[0])

	state := store.state("u1")
	require.Equal(t, "they said hello", state.Summary)
	require.Empty(t, state.BufferText())
	require.Zero(t, state.PendingCount)
	require.Equal(t, epoch, state.LastUpdated)
}

func TestSummarizerAssistantEntriesNeverCompact(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "summary"}
	s := newTestSummarizer(store, gen)

	for i := 0; i < 10; i++ {
		_, err := s.Record(context.Background(), "u1", fmt.Sprintf("reply %d", i), core.RoleAssistant)
		require.NoError(t, err)
	}

	require.Empty(t, gen.calls())
	state := store.state("u1")
	require.Zero(t, state.PendingCount)
	require.Len(t, state.Buffer, 10)
	require.Equal(t, "Assistant: reply 0\n", state.Buffer[0])
}

func TestSummarizerInterleavedScenario(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "greetings exchanged"}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	turns := []struct {
		message string
		role    core.Role
	}{
		{"hi", core.RoleUser},
		{"hello!", core.RoleAssistant},
		{"how are you", core.RoleUser},
		{"great, you?", core.RoleAssistant},
		{"what's up", core.RoleUser},
	}

	for i, turn := range turns {
		_, err := s.Record(ctx, "u1", turn.message, turn.role)
		require.NoError(t, err)
		if i < len(turns)-1 {
			require.Empty(t, gen.calls(), "compaction fired after turn %d", i)
		}
	}

	calls := gen.calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0], "User: hi\nAssistant: hello!\nUser: how are you\nAssistant: great, you?\nUser: what's up\n")

	_, err := s.Record(ctx, "u1", "not much", core.RoleAssistant)
	require.NoError(t, err)
	require.Len(t, gen.calls(), 1)

	state := store.state("u1")
	require.Equal(t, "greetings exchanged", state.Summary)
	require.Equal(t, []string{"Assistant: not much\n"}, state.Buffer)
	require.Zero(t, state.PendingCount)
}

func TestSummarizerFailedCompactionLeavesStateUnchanged(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{replies: []string{"first summary"}}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c"} {
		_, err := s.Record(ctx, "u1", msg, core.RoleUser)
		require.NoError(t, err)
	}
	require.Equal(t, "first summary", store.state("u1").Summary)

	gen.err = errBackendDown
	_, err := s.Record(ctx, "u1", "d", core.RoleUser)
	require.NoError(t, err)
	_, err = s.Record(ctx, "u1", "e", core.RoleUser)
	require.NoError(t, err)
	before := store.state("u1")

	summary, err := s.Record(ctx, "u1", "f", core.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "first summary", summary)

	after := store.state("u1")
	require.Equal(t, "first summary", after.Summary)
	require.Equal(t, 3, after.PendingCount)
	require.Equal(t, append(before.Buffer, "User: f\n"), after.Buffer)

	// The next user message retries compaction.
	gen.err = nil
	gen.fallback = "second summary"
	summary, err = s.Record(ctx, "u1", "g", core.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "second summary", summary)
	require.Zero(t, store.state("u1").PendingCount)

	calls := gen.calls()
	require.Contains(t, calls[len(calls)-1], "|first summary|User: d\nUser: e\nUser: f\nUser: g\n")
}

func TestSummarizerAssistantEntryDoesNotRetryFailedCompaction(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{err: errBackendDown}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c"} {
		_, err := s.Record(ctx, "u1", msg, core.RoleUser)
		require.NoError(t, err)
	}
	require.Len(t, gen.calls(), 1)
	require.Equal(t, 3, store.state("u1").PendingCount)

	_, err := s.Record(ctx, "u1", "sorry, say again?", core.RoleAssistant)
	require.NoError(t, err)
	require.Len(t, gen.calls(), 1)

	state := store.state("u1")
	require.Equal(t, 3, state.PendingCount)
	require.Len(t, state.Buffer, 4)

	gen.err = nil
	gen.fallback = "recovered"
	summary, err := s.Record(ctx, "u1", "d", core.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "recovered", summary)
	require.Len(t, gen.calls(), 2)
}

func TestSummarizerRejectsUnknownRole(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})

	_, err := s.Record(context.Background(), "u1", "hi", core.Role("System"))
	require.ErrorIs(t, err, core.ErrInvalidMessage)
	require.Zero(t, store.upserts)
}

func TestSummarizerReset(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})
	ctx := context.Background()

	_, err := s.Record(ctx, "u1", "hi", core.RoleUser)
	require.NoError(t, err)

	found, err := s.Reset(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)

	state, err := s.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, state)

	found, err = s.Reset(ctx, "u1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSummarizerEmptySummaryCountsAsFailure(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "   "}
	s := newTestSummarizer(store, gen)
	s.Threshold = 1

	summary, err := s.Record(context.Background(), "u1", "hello", core.RoleUser)
	require.NoError(t, err)
	require.Empty(t, summary)
	require.Equal(t, 1, store.state("u1").PendingCount)
	require.Equal(t, []string{"User: hello\n"}, store.state("u1").Buffer)
}

func TestSummarizerTruncatesSummaryToWordCap(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "one two three four five six"}
	s := newTestSummarizer(store, gen)
	s.Threshold = 1
	s.WordCap = 4

	summary, err := s.Record(context.Background(), "u1", "hello", core.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "one two three four", summary)
	require.Contains(t, gen.calls()[0], "compact|4|")
}

func TestSummarizerBoundsBuffer(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{err: errBackendDown}
	s := newTestSummarizer(store, gen)
	s.MaxBufferBytes = 40

	for i := 0; i < 20; i++ {
		_, err := s.Record(context.Background(), "u1", fmt.Sprintf("message %02d", i), core.RoleUser)
		require.NoError(t, err)
	}

	state := store.state("u1")
	require.LessOrEqual(t, state.BufferBytes(), 40)
	require.Equal(t, "User: message 19\n", state.Buffer[len(state.Buffer)-1])
	require.Equal(t, 20, state.PendingCount)
}

func TestSummarizerKeepsOversizedNewestEntry(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})
	s.MaxBufferBytes = 8

	_, err := s.Record(context.Background(), "u1", "short", core.RoleAssistant)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "u1", strings.Repeat("x", 32), core.RoleAssistant)
	require.NoError(t, err)

	require.Equal(t, []string{"Assistant: " + strings.Repeat("x", 32) + "\n"}, store.state("u1").Buffer)
}

func TestSummarizerPersistenceErrors(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})

	store.getErr = fmt.Errorf("disk gone")
	_, err := s.Record(context.Background(), "u1", "hi", core.RoleUser)
	require.ErrorIs(t, err, core.ErrPersistence)

	store.getErr = nil
	store.upsertErr = fmt.Errorf("read only")
	_, err = s.Record(context.Background(), "u1", "hi", core.RoleUser)
	require.ErrorIs(t, err, core.ErrPersistence)
	require.ErrorContains(t, err, "read only")
}

func TestSummarizerFetch(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})

	state, err := s.Fetch(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, state)
	require.Zero(t, store.upserts)

	_, err = s.Record(context.Background(), "u1", "hi", core.RoleUser)
	require.NoError(t, err)

	state, err = s.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"User: hi\n"}, state.Buffer)
}

func TestSummarizerConcurrentUsersDoNotInterleave(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})
	s.Threshold = 1000

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(user string, i int) {
				defer wg.Done()
				_, err := s.Record(context.Background(), user, fmt.Sprintf("%s-%d", user, i), core.RoleUser)
				require.NoError(t, err)
			}(user, i)
		}
	}
	wg.Wait()

	alice := store.state("alice")
	bob := store.state("bob")
	require.Len(t, alice.Buffer, 50)
	require.Len(t, bob.Buffer, 50)
	require.NotContains(t, alice.BufferText(), "bob-")
	require.NotContains(t, bob.BufferText(), "alice-")
}

func TestSummarizerConcurrentSameUserLosesNoIncrements(t *testing.T) {
	store := newMemoryConversationStore()
	s := newTestSummarizer(store, &scriptedGenerator{})
	s.Threshold = 1000

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := core.RoleUser
			if i%2 == 1 {
				role = core.RoleAssistant
			}
			_, err := s.Record(context.Background(), "u1", fmt.Sprintf("m%d", i), role)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state := store.state("u1")
	require.Equal(t, 50, state.PendingCount)
	require.Len(t, state.Buffer, 100)
	require.Zero(t, s.locks.Len())
}

func TestSummarizerConcurrentSameUserCompactsOncePerThreshold(t *testing.T) {
	store := newMemoryConversationStore()
	gen := &scriptedGenerator{fallback: "s"}
	s := newTestSummarizer(store, gen)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Record(context.Background(), "u1", fmt.Sprintf("m%d", i), core.RoleUser)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, gen.calls(), 10)
	require.Zero(t, store.state("u1").PendingCount)
}

func TestTruncateWords(t *testing.T) {
	require.Equal(t, "a b", truncateWords("a b", 3))
	require.Equal(t, "a b c", truncateWords("a  b\nc d", 3))
	require.Equal(t, "a b c d", truncateWords("a b c d", 0))
}
