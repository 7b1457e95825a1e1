package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/vectorstore"
	"github.com/openviking/openviking/internal/vikingfs"
)

// Player re-issues recorded calls against a configured backend pair and
// reports per-operation timing plus the aggregate speedup ratio.
type Player struct {
	backend    vikingfs.Backend
	collection vectorstore.Collection
}

// NewPlayer creates a Player. Either target may be nil, in which case
// records of the corresponding io_type are not re-issued but still count
// toward the total and as successes (records excluded by PlayOptions are
// not counted at all).
func NewPlayer(backend vikingfs.Backend, collection vectorstore.Collection) *Player {
	return &Player{backend: backend, collection: collection}
}

// PlayOptions filters and bounds one replay run.
type PlayOptions struct {
	IOType    string // "fs" | "vikingdb" | "" for both
	Operation string // exact operation name, "" for all
	Limit     int
	Offset    int
	FailFast  bool
}

// Play reads the JSONL record file and replays every matching record.
// Trailing partial lines are treated as EOF.
func (p *Player) Play(ctx context.Context, recordFile string, opts PlayOptions) (*models.PlayerReport, error) {
	file, err := os.Open(recordFile)
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.NotFound, err, "opening record file %q", recordFile)
	}
	defer file.Close()

	report := &models.PlayerReport{Operations: map[string]*models.PlayerOperationStats{}}
	var totalOrig, totalPlay float64
	playSums := map[string]float64{}
	origSums := map[string]float64{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	index := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, ovterrors.Wrap(ovterrors.Timeout, err, "replay canceled")
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record models.IORecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// A partial trailing line is EOF, not corruption.
			break
		}
		if opts.IOType != "" && string(record.IOType) != opts.IOType {
			continue
		}
		if opts.Operation != "" && record.Operation != opts.Operation {
			continue
		}
		if index < opts.Offset {
			index++
			continue
		}
		if opts.Limit > 0 && report.TotalRecords >= opts.Limit {
			break
		}
		index++
		report.TotalRecords++

		start := time.Now()
		replayErr := p.playRecord(ctx, record)
		playMS := float64(time.Since(start).Microseconds()) / 1000

		success := replayErr == nil
		if !success && record.Error != "" && errorsMatch(replayErr.Error(), record.Error) {
			success = true
		}
		if success {
			report.SuccessCount++
		} else {
			report.FailureCount++
			if opts.FailFast {
				return report, ovterrors.Wrap(ovterrors.Internal, replayErr, "replay of %s %s failed", record.IOType, record.Operation)
			}
		}

		stats, ok := report.Operations[record.Operation]
		if !ok {
			stats = &models.PlayerOperationStats{Operation: record.Operation}
			report.Operations[record.Operation] = stats
		}
		stats.Count++
		origSums[record.Operation] += record.LatencyMS
		playSums[record.Operation] += playMS
		totalOrig += record.LatencyMS
		totalPlay += playMS
	}
	if err := scanner.Err(); err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "reading record file")
	}

	for op, stats := range report.Operations {
		if stats.Count > 0 {
			stats.OrigAvgMS = origSums[op] / float64(stats.Count)
			stats.PlayAvgMS = playSums[op] / float64(stats.Count)
		}
	}
	if totalPlay > 0 {
		report.SpeedupRatio = totalOrig / totalPlay
	}
	return report, nil
}

func (p *Player) playRecord(ctx context.Context, record models.IORecord) error {
	switch record.IOType {
	case models.IOTypeFS:
		if p.backend == nil {
			return nil
		}
		return p.playFS(ctx, record)
	case models.IOTypeVikingDB:
		if p.collection == nil {
			return nil
		}
		return p.playVector(ctx, record)
	default:
		return ovterrors.InvalidArgumentf("unknown io_type %q", record.IOType)
	}
}

func requestMap(record models.IORecord) map[string]interface{} {
	if m, ok := record.Request.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func (p *Player) playFS(ctx context.Context, record models.IORecord) error {
	req := requestMap(record)
	switch record.Operation {
	case "read":
		_, err := p.backend.Read(ctx, str(req, "path"))
		return err
	case "write":
		data, ok := bytesFromRecord(req["data"])
		if !ok {
			if s, isStr := req["data"].(string); isStr {
				data = []byte(s)
			}
		}
		return p.backend.Write(ctx, str(req, "path"), data)
	case "ls":
		_, err := p.backend.List(ctx, str(req, "path"))
		return err
	case "stat":
		_, err := p.backend.Stat(ctx, str(req, "path"))
		return err
	case "mkdir":
		return p.backend.Mkdir(ctx, str(req, "path"))
	case "rm":
		recursive, _ := req["recursive"].(bool)
		return p.backend.Remove(ctx, str(req, "path"), recursive)
	case "mv":
		return p.backend.Move(ctx, str(req, "old_path"), str(req, "new_path"))
	default:
		return ovterrors.InvalidArgumentf("unknown fs operation %q", record.Operation)
	}
}

func recordedFilter(req map[string]interface{}) (filter.Expr, error) {
	dsl, ok := req["filter"].(map[string]interface{})
	if !ok || dsl == nil {
		return nil, nil
	}
	return vectorstore.ParseWireDSL(dsl)
}

func (p *Player) playVector(ctx context.Context, record models.IORecord) error {
	req := requestMap(record)
	switch record.Operation {
	case "upsert":
		data, err := json.Marshal(req["records"])
		if err != nil {
			return ovterrors.Wrap(ovterrors.InvalidArgument, err, "re-encoding upsert records")
		}
		var contexts []models.Context
		if err := json.Unmarshal(data, &contexts); err != nil {
			return ovterrors.Wrap(ovterrors.InvalidArgument, err, "decoding upsert records")
		}
		return p.collection.Upsert(ctx, contexts)
	case "delete":
		raw, _ := req["ids"].([]interface{})
		ids := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
		return p.collection.Delete(ctx, ids)
	case "delete_by_filter":
		f, err := recordedFilter(req)
		if err != nil {
			return err
		}
		_, err = p.collection.DeleteByFilter(ctx, f)
		return err
	case "search":
		f, err := recordedFilter(req)
		if err != nil {
			return err
		}
		_, err = p.collection.Search(ctx, vectorstore.SearchRequest{
			Dense:  floatSlice(req["dense"]),
			Sparse: sparseMap(req["sparse"]),
			Filter: f,
			Limit:  intValue(req["limit"]),
			Offset: intValue(req["offset"]),
		})
		return err
	case "filter":
		f, err := recordedFilter(req)
		if err != nil {
			return err
		}
		_, err = p.collection.Filter(ctx, f, intValue(req["limit"]), intValue(req["offset"]))
		return err
	case "update":
		fields, _ := req["fields"].(map[string]interface{})
		_, err := p.collection.Update(ctx, str(req, "id"), fields)
		return err
	case "count":
		f, err := recordedFilter(req)
		if err != nil {
			return err
		}
		_, err = p.collection.Count(ctx, f)
		return err
	default:
		return ovterrors.InvalidArgumentf("unknown vikingdb operation %q", record.Operation)
	}
}

func floatSlice(v interface{}) []float32 {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, item := range raw {
		if f, ok := item.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func sparseMap(v interface{}) map[uint32]float32 {
	raw, ok := v.(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[uint32]float32, len(raw))
	for key, item := range raw {
		f, ok := item.(float64)
		if !ok {
			continue
		}
		var term uint32
		for _, r := range key {
			if r < '0' || r > '9' {
				term = 0
				break
			}
			term = term*10 + uint32(r-'0')
		}
		if term != 0 || key == "0" {
			out[term] = float32(f)
		}
	}
	return out
}

func intValue(v interface{}) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
