// Package audit records admin-plane mutations (account/user/token CRUD):
// who, what, when, and outcome. Records are appended as JSONL to the
// system area of the storage backend, outside any tenant subtree, and are
// queryable through /api/v1/admin/audit.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/vikingfs"
)

const auditPath = "/local/_system/audit.jsonl"

// Trail appends and queries the admin audit log. Appends are serialized
// under one lock; the storage backend itself is last-writer-wins, so
// read-modify-write without the lock would lose records.
type Trail struct {
	backend vikingfs.Backend

	mu sync.Mutex

	now func() time.Time
}

// NewTrail creates a Trail over backend.
func NewTrail(backend vikingfs.Backend) *Trail {
	return &Trail{backend: backend, now: time.Now}
}

// Append records one admin action. Audit failures are returned, not
// swallowed; callers decide whether a mutation without its audit record
// is acceptable (the HTTP layer ignores the error and proceeds).
func (t *Trail) Append(ctx context.Context, actor, action, target, result string) error {
	record := models.AuditRecord{
		Timestamp: t.now().UTC(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Result:    result,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "marshaling audit record")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	existing, err := t.backend.Read(ctx, auditPath)
	if err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
		return err
	}
	return t.backend.Write(ctx, auditPath, append(append(existing, line...), '\n'))
}

// Query returns the most recent records, newest first, up to limit.
// Trailing partial lines are tolerated.
func (t *Trail) Query(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	data, err := t.backend.Read(ctx, auditPath)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}

	var records []models.AuditRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record models.AuditRecord
		if err := json.Unmarshal(line, &record); err != nil {
			break
		}
		records = append(records, record)
	}

	// Newest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
