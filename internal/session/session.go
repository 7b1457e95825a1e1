// Package session implements the session and memory lifecycle:
// append-only conversational transcripts under viking://session/…,
// commit-time memory extraction with similarity dedup, and session
// deletion that also drops the memories it created.
package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openviking/openviking/internal/embedding"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/ovuri"
	"github.com/openviking/openviking/internal/pkg/metrics"
	"github.com/openviking/openviking/internal/semantic"
	"github.com/openviking/openviking/internal/trace"
	"github.com/openviking/openviking/internal/vikingfs"
)

// DefaultDedupThreshold is the cosine similarity at or above which an extracted
// memory is considered a duplicate of an existing one in the same
// category and skipped.
const DefaultDedupThreshold = 0.9

const (
	transcriptFile = "transcript.jsonl"
	manifestFile   = "memories.json"
)

// Manager drives session CRUD and commit-time memory extraction.
type Manager struct {
	fs             *vikingfs.VikingFS
	gateway        *semantic.Gateway
	embedder       embedding.Provider
	extractor      Extractor
	dedupThreshold float64
	now            func() time.Time
}

// NewManager wires a session manager. A nil extractor falls back to the
// embedded RuleExtractor; threshold <= 0 falls back to the default.
func NewManager(fs *vikingfs.VikingFS, gateway *semantic.Gateway, embedder embedding.Provider, extractor Extractor, dedupThreshold float64) *Manager {
	if extractor == nil {
		extractor = RuleExtractor{}
	}
	if dedupThreshold <= 0 {
		dedupThreshold = DefaultDedupThreshold
	}
	return &Manager{
		fs:             fs,
		gateway:        gateway,
		embedder:       embedder,
		extractor:      extractor,
		dedupThreshold: dedupThreshold,
		now:            time.Now,
	}
}

func sessionBaseURI(rc identity.RequestContext) string {
	return "viking://session/" + rc.User.UserSpaceName()
}

func sessionURI(rc identity.RequestContext, sessionID string) string {
	return ovuri.Join(sessionBaseURI(rc), sessionID)
}

// Create allocates a fresh session id and its directory.
func (m *Manager) Create(ctx context.Context, rc identity.RequestContext) (string, error) {
	sessionID := "sess_" + uuid.NewString()
	if err := m.fs.Mkdir(ctx, rc, sessionURI(rc, sessionID)); err != nil {
		return "", err
	}
	return sessionID, nil
}

// AddMessage appends one message to the session transcript. Messages are
// totally ordered by append; committed sessions reject
// further appends.
func (m *Manager) AddMessage(ctx context.Context, rc identity.RequestContext, sessionID string, msg models.SessionMessage) error {
	if msg.Role == "" {
		return ovterrors.InvalidArgumentf("message role is required")
	}
	committed, err := m.isCommitted(ctx, rc, sessionID)
	if err != nil {
		return err
	}
	if committed {
		return ovterrors.InvalidArgumentf("session %q is already committed", sessionID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}

	uri := ovuri.Join(sessionURI(rc, sessionID), transcriptFile)
	existing, err := m.fs.Read(ctx, rc, uri)
	if err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
		return err
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "marshaling session message")
	}
	return m.fs.Write(ctx, rc, uri, append(append(existing, line...), '\n'))
}

// Messages loads the transcript, tolerating a trailing partial line
// (treated as EOF).
func (m *Manager) Messages(ctx context.Context, rc identity.RequestContext, sessionID string) ([]models.SessionMessage, error) {
	uri := ovuri.Join(sessionURI(rc, sessionID), transcriptFile)
	data, err := m.fs.Read(ctx, rc, uri)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	var messages []models.SessionMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg models.SessionMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			break
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Load assembles the full session view: transcript, commit state, and
// the owning space.
func (m *Manager) Load(ctx context.Context, rc identity.RequestContext, sessionID string) (models.Session, error) {
	entry, err := m.fs.Stat(ctx, rc, sessionURI(rc, sessionID))
	if err != nil {
		return models.Session{}, err
	}
	messages, err := m.Messages(ctx, rc, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	committed, err := m.isCommitted(ctx, rc, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{
		SessionID: sessionID,
		Space:     rc.User.UserSpaceName(),
		Messages:  messages,
		Committed: committed,
		CreatedAt: entry.ModTime,
	}, nil
}

// SessionInfo is one row of List.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	URI       string `json:"uri"`
	Committed bool   `json:"committed"`
}

// List returns the caller's sessions.
func (m *Manager) List(ctx context.Context, rc identity.RequestContext) ([]SessionInfo, error) {
	base := sessionBaseURI(rc)
	entries, err := m.fs.Ls(ctx, rc, base)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]SessionInfo, 0, len(entries))
	for _, uri := range entries {
		sessionID := strings.TrimPrefix(uri, base+"/")
		committed, err := m.isCommitted(ctx, rc, sessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, SessionInfo{SessionID: sessionID, URI: uri, Committed: committed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *Manager) isCommitted(ctx context.Context, rc identity.RequestContext, sessionID string) (bool, error) {
	_, err := m.fs.Stat(ctx, rc, ovuri.Join(sessionURI(rc, sessionID), manifestFile))
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CommitResult reports what one commit produced.
type CommitResult struct {
	SessionID         string                   `json:"session_id"`
	MemoriesExtracted int                      `json:"memories_extracted"`
	MemoriesSkipped   int                      `json:"memories_skipped"`
	Memories          []models.ExtractedMemory `json:"memories,omitempty"`
	MemoryURIs        []string                 `json:"memory_uris"`
	HistoryURI        string                   `json:"history_uri"`
}

// manifest records what a commit created, so Delete can drop it again.
type manifest struct {
	CommittedAt time.Time `json:"committed_at"`
	MemoryURIs  []string  `json:"memory_uris"`
	HistoryURI  string    `json:"history_uri"`
}

// memoryID derives a stable record id from the memory URI, making the
// batched vector upsert idempotent; re-running a half-finished commit
// converges instead of duplicating.
func memoryID(accountID, uri string) string {
	sum := sha256.Sum256([]byte(accountID + "\x00" + uri))
	return "mem_" + hex.EncodeToString(sum[:16])
}

// Commit freezes the session: the transcript stays on the FS, a
// grep-searchable history entry is written, and the extractor's memory
// candidates are deduped against existing memories and stored as L2
// contexts under the agent memory space. The vector write is one batched
// upsert with idempotent ids, so either all extracted memories become
// visible or none.
func (m *Manager) Commit(ctx context.Context, rc identity.RequestContext, sessionID string) (*CommitResult, error) {
	collector := trace.FromContext(ctx)

	committed, err := m.isCommitted(ctx, rc, sessionID)
	if err != nil {
		return nil, err
	}
	if committed {
		return nil, ovterrors.AlreadyExistsf("session %q is already committed", sessionID)
	}

	messages, err := m.Messages(ctx, rc, sessionID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ovterrors.InvalidArgumentf("session %q has no messages to commit", sessionID)
	}

	consolidation, err := m.extractor.Consolidate(ctx, messages)
	if err != nil {
		return nil, err
	}
	collector.AddTokenUsage(consolidation.InputTokens, consolidation.OutputTokens)

	historyURI := ovuri.Join(sessionURI(rc, sessionID), "history.md")
	if err := m.fs.Write(ctx, rc, historyURI, []byte(consolidation.HistoryEntry)); err != nil {
		return nil, err
	}

	memoryRoot := rc.User.MemorySpaceURI()
	agentSpace := rc.User.AgentSpaceName()
	now := m.now().UTC()

	var records []models.Context
	var memoryURIs []string
	var extracted []models.ExtractedMemory
	skipped := 0
	for _, candidate := range m.dedupCandidates(consolidation.Memories) {
		emb, err := embedding.EmbedOne(ctx, m.embedder, candidate.Content)
		if err != nil {
			return nil, err
		}
		categoryURI := ovuri.Join(memoryRoot, candidate.Category)

		similar, err := m.gateway.SearchSimilarMemories(ctx, rc.AccountID(), agentSpace, categoryURI, emb.Dense, 1)
		if err != nil {
			return nil, err
		}
		if len(similar) > 0 && similar[0].Score >= m.dedupThreshold {
			skipped++
			collector.Event("memory", "dedup_skip", map[string]interface{}{
				"uri": similar[0].URI, "score": similar[0].Score,
			}, "ok")
			continue
		}

		memURI := ovuri.Join(categoryURI, memorySlug(candidate.Content)+".md")
		if err := m.fs.Write(ctx, rc, memURI, []byte(candidate.Content)); err != nil {
			return nil, err
		}
		records = append(records, models.Context{
			ID:          memoryID(rc.AccountID(), memURI),
			URI:         memURI,
			ContextType: models.ContextTypeMemory,
			Level:       models.LevelFull,
			AccountID:   rc.AccountID(),
			OwnerSpace:  agentSpace,
			UpdatedAt:   now,
			Dense:       emb.Dense,
			Sparse:      emb.Sparse,
			Relations:   []models.Relation{{Type: "extracted_from", TargetURI: sessionURI(rc, sessionID)}},
		})
		memoryURIs = append(memoryURIs, memURI)
		extracted = append(extracted, models.ExtractedMemory{
			URI:         memURI,
			Content:     candidate.Content,
			Category:    candidate.Category,
			CreatedAt:   now,
			FromSession: sessionID,
		})
	}

	if len(records) > 0 {
		if err := m.gateway.Upsert(ctx, records); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(manifest{CommittedAt: now, MemoryURIs: memoryURIs, HistoryURI: historyURI}, "", "  ")
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "marshaling session manifest")
	}
	if err := m.fs.Write(ctx, rc, ovuri.Join(sessionURI(rc, sessionID), manifestFile), data); err != nil {
		return nil, err
	}

	collector.Set("memory.memories_extracted", len(memoryURIs))
	metrics.MemoriesExtractedTotal.Add(float64(len(memoryURIs)))
	metrics.MemoriesDedupSkippedTotal.Add(float64(skipped))
	return &CommitResult{
		SessionID:         sessionID,
		MemoriesExtracted: len(memoryURIs),
		MemoriesSkipped:   skipped,
		Memories:          extracted,
		MemoryURIs:        memoryURIs,
		HistoryURI:        historyURI,
	}, nil
}

// dedupCandidates drops duplicate candidates inside one commit before the
// vector-level dedup runs.
func (m *Manager) dedupCandidates(candidates []MemoryCandidate) []MemoryCandidate {
	seen := map[string]bool{}
	out := make([]MemoryCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Category + "\x00" + strings.ToLower(strings.TrimSpace(c.Content))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// memorySlug derives a filesystem-safe file stem from the memory content.
func memorySlug(content string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(content) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
		if b.Len() >= 48 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "memory"
	}
	sum := sha256.Sum256([]byte(content))
	return slug + "-" + hex.EncodeToString(sum[:4])
}

// Delete removes the session subtree and drops the memories its commit
// created.
func (m *Manager) Delete(ctx context.Context, rc identity.RequestContext, sessionID string) error {
	uri := sessionURI(rc, sessionID)
	if _, err := m.fs.Stat(ctx, rc, uri); err != nil {
		return err
	}

	var mf manifest
	data, err := m.fs.Read(ctx, rc, ovuri.Join(uri, manifestFile))
	if err == nil {
		if err := json.Unmarshal(data, &mf); err == nil && len(mf.MemoryURIs) > 0 {
			if err := m.gateway.DeleteURIs(ctx, rc, mf.MemoryURIs); err != nil {
				return err
			}
			for _, memURI := range mf.MemoryURIs {
				if err := m.fs.Rm(ctx, rc, memURI, false); err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
					return err
				}
			}
		}
	} else if !ovterrors.Is(err, ovterrors.NotFound) {
		return err
	}

	return m.fs.Rm(ctx, rc, uri, true)
}
