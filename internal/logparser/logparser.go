// Package logparser implements the Log Parser (C3): stateless decoding
// of one JSONL record into a model.CallEvent. Grounded on the teacher's
// stateless handler style (small pure functions, no shared mutable
// state per call) and services/gateway/provider/pricing.go's cost
// calculation, wired here through the pricing engine.
package logparser

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlfredDev/orchestratord/internal/apperr"
	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/pricing"
)

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type rawMessage struct {
	Model string   `json:"model"`
	Usage rawUsage `json:"usage"`
}

type rawRecord struct {
	Timestamp string     `json:"timestamp"`
	Type      string     `json:"type"`
	UUID      string     `json:"uuid"`
	SessionID string     `json:"sessionId"`
	Message   rawMessage `json:"message"`
}

// Parser decodes lines into CallEvents using a shared cost engine.
// Parser holds no per-call state and is safe to invoke concurrently
// from a worker pool, one per watched file.
type Parser struct {
	pricing *pricing.Engine
}

// New builds a Parser bound to the given cost engine.
func New(pe *pricing.Engine) *Parser {
	return &Parser{pricing: pe}
}

// Parse decodes a single JSONL line into a CallEvent. Malformed lines
// and non-assistant rows return (nil, nil) — they are a skip, not an
// error. A record lacking uuid or a usage-bearing message is similarly
// skipped; the caller is expected to count these as ingestion errors.
func (p *Parser) Parse(line []byte, sourcePath string) (*model.CallEvent, error) {
	line = trimTrailingNewline(line)
	if len(line) == 0 {
		return nil, nil
	}

	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, apperr.New(apperr.ClassIngestion, "MALFORMED_LINE", "line is not valid JSON")
	}

	if rec.Type != "assistant" {
		return nil, nil
	}
	if rec.UUID == "" {
		return nil, apperr.New(apperr.ClassIngestion, "MISSING_DEDUP_KEY", "record has no uuid")
	}
	if rec.Message.Model == "" {
		return nil, nil
	}

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return nil, apperr.New(apperr.ClassIngestion, "MALFORMED_TIMESTAMP", "record timestamp is not ISO-8601")
		}
	}

	tier := pricing.ResolveTier(rec.Message.Model)
	tokens := model.TokenCounts{
		Input:      rec.Message.Usage.InputTokens,
		Output:     rec.Message.Usage.OutputTokens,
		CacheWrite: rec.Message.Usage.CacheCreationInputTokens,
		CacheRead:  rec.Message.Usage.CacheReadInputTokens,
	}
	cost := p.pricing.Cost(rec.Message.Model, tokens)

	return &model.CallEvent{
		Timestamp:   ts.UTC(),
		SourcePath:  sourcePath,
		SessionID:   rec.SessionID,
		ProjectID:   ProjectIDFromPath(sourcePath),
		MessageUUID: rec.UUID,
		Model:       rec.Message.Model,
		Tier:        tier,
		Tokens:      tokens,
		Cost:        cost,
		Kind:        model.KindAssistant,
	}, nil
}

// ProjectIDFromPath derives the project id from the log's enclosing
// directory name, stripped of the conventional leading-dash prefix
// used by the collaborating client to mark encoded project paths.
func ProjectIDFromPath(sourcePath string) string {
	dir := filepath.Base(filepath.Dir(sourcePath))
	return strings.TrimPrefix(dir, "-")
}

func trimTrailingNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
