package logparser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/logparser"
	"github.com/AlfredDev/orchestratord/internal/pricing"
)

func TestParseBasicAssistantRecord(t *testing.T) {
	p := logparser.New(pricing.NewEngine())
	line := []byte(`{"timestamp":"2026-07-30T10:00:00Z","type":"assistant","uuid":"m1","sessionId":"s1","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":10000,"output_tokens":3000,"cache_creation_input_tokens":0,"cache_read_input_tokens":9000}}}`)

	ev, err := p.Parse(line, "/home/u/.claude/projects/-home-u-proj-a/session.jsonl")
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, "m1", ev.MessageUUID)
	assert.Equal(t, "home-u-proj-a", ev.ProjectID)
	assert.Equal(t, int64(10000), ev.Tokens.Input)
	assert.Greater(t, ev.Cost.Total, 0.0)
}

func TestParseSkipsNonAssistantRecords(t *testing.T) {
	p := logparser.New(pricing.NewEngine())
	line := []byte(`{"timestamp":"2026-07-30T10:00:00Z","type":"user","uuid":"m2"}`)
	ev, err := p.Parse(line, "/tmp/x/f.jsonl")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestParseMissingUUIDIsDropped(t *testing.T) {
	p := logparser.New(pricing.NewEngine())
	line := []byte(`{"timestamp":"2026-07-30T10:00:00Z","type":"assistant","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":1}}}`)
	ev, err := p.Parse(line, "/tmp/x/f.jsonl")
	assert.Nil(t, ev)
	require.Error(t, err)
}

func TestParseMalformedLineIsCountedNotFatal(t *testing.T) {
	p := logparser.New(pricing.NewEngine())
	ev, err := p.Parse([]byte(`{not json`), "/tmp/x/f.jsonl")
	assert.Nil(t, ev)
	require.Error(t, err)
}

func TestParseUnknownModelZeroCost(t *testing.T) {
	p := logparser.New(pricing.NewEngine())
	line := []byte(`{"timestamp":"2026-07-30T10:00:00Z","type":"assistant","uuid":"m3","message":{"model":"some-future-model","usage":{"input_tokens":100,"output_tokens":50}}}`)
	ev, err := p.Parse(line, "/tmp/x/f.jsonl")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 0.0, ev.Cost.Total)
}
