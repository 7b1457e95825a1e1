package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/embedding"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/semantic"
	"github.com/openviking/openviking/internal/vectorstore"
	"github.com/openviking/openviking/internal/vikingfs"
)

var alice = identity.RequestContext{
	User: identity.UserIdentifier{AccountID: "acme", UserID: "alice", AgentID: "bot"},
	Role: identity.RoleUser,
}

func newSessionManager(t *testing.T) (*Manager, *semantic.Gateway, *vikingfs.VikingFS) {
	t.Helper()
	backend, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	fs := vikingfs.New(backend)

	driver, err := vectorstore.NewLocalDriver(vectorstore.Config{Backend: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	gateway, err := semantic.New(context.Background(), driver, "")
	require.NoError(t, err)

	embedder := embedding.NewHashProvider(64)
	return NewManager(fs, gateway, embedder, nil, 0), gateway, fs
}

func TestAddMessageOrdering(t *testing.T) {
	m, _, _ := newSessionManager(t)
	ctx := context.Background()

	sessionID, err := m.Create(ctx, alice)
	require.NoError(t, err)

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, m.AddMessage(ctx, alice, sessionID, models.SessionMessage{Role: "user", Content: content}))
	}

	messages, err := m.Messages(ctx, alice, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestCommitExtractsMemories(t *testing.T) {
	m, gateway, _ := newSessionManager(t)
	ctx := context.Background()

	sessionID, err := m.Create(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, alice, sessionID, models.SessionMessage{Role: "user", Content: "I live in Paris."}))
	require.NoError(t, m.AddMessage(ctx, alice, sessionID, models.SessionMessage{Role: "assistant", Content: "Noted!"}))

	result, err := m.Commit(ctx, alice, sessionID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.MemoriesExtracted, 1)
	require.NotEmpty(t, result.MemoryURIs)
	assert.True(t, strings.HasPrefix(result.MemoryURIs[0], alice.User.MemorySpaceURI()),
		"memories land under the agent memory space")

	records, err := gateway.GetContextByURI(ctx, "acme", result.MemoryURIs[0], 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ContextTypeMemory, records[0].ContextType)
	assert.Equal(t, models.LevelFull, records[0].Level)
	assert.Equal(t, alice.User.AgentSpaceName(), records[0].OwnerSpace)

	// A committed session refuses further appends and a second commit.
	err = m.AddMessage(ctx, alice, sessionID, models.SessionMessage{Role: "user", Content: "more"})
	assert.Equal(t, ovterrors.InvalidArgument, ovterrors.CodeOf(err))
	_, err = m.Commit(ctx, alice, sessionID)
	assert.Equal(t, ovterrors.AlreadyExists, ovterrors.CodeOf(err))
}

func TestCommitDedupsRepeatedFacts(t *testing.T) {
	m, _, _ := newSessionManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, alice, first, models.SessionMessage{Role: "user", Content: "I live in Paris."}))
	result, err := m.Commit(ctx, alice, first)
	require.NoError(t, err)
	require.Equal(t, 1, result.MemoriesExtracted)

	// Same fact again in a second session: the similarity search hits the
	// stored memory at cosine 1.0 and persists nothing new.
	second, err := m.Create(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, alice, second, models.SessionMessage{Role: "user", Content: "I live in Paris."}))
	result, err = m.Commit(ctx, alice, second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.MemoriesExtracted)
	assert.Equal(t, 1, result.MemoriesSkipped)
}

func TestDeleteDropsSessionAndMemories(t *testing.T) {
	m, gateway, fs := newSessionManager(t)
	ctx := context.Background()

	sessionID, err := m.Create(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, m.AddMessage(ctx, alice, sessionID, models.SessionMessage{Role: "user", Content: "I prefer dark roast coffee."}))
	result, err := m.Commit(ctx, alice, sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, result.MemoryURIs)

	require.NoError(t, m.Delete(ctx, alice, sessionID))

	records, err := gateway.GetContextByURI(ctx, "acme", result.MemoryURIs[0], 1)
	require.NoError(t, err)
	assert.Empty(t, records, "in-session memories are dropped with the session")

	_, err = fs.Stat(ctx, alice, "viking://session/"+alice.User.UserSpaceName()+"/"+sessionID)
	assert.Equal(t, ovterrors.NotFound, ovterrors.CodeOf(err))
}

func TestListSessions(t *testing.T) {
	m, _, _ := newSessionManager(t)
	ctx := context.Background()

	s1, err := m.Create(ctx, alice)
	require.NoError(t, err)
	s2, err := m.Create(ctx, alice)
	require.NoError(t, err)

	sessions, err := m.List(ctx, alice)
	require.NoError(t, err)
	ids := []string{sessions[0].SessionID, sessions[1].SessionID}
	assert.ElementsMatch(t, []string{s1, s2}, ids)
}
