package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pokerjest/animerss/internal/ai"
	"github.com/pokerjest/animerss/internal/logging"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/stretchr/testify/assert"
)

type fakeAI struct {
	title string
	err   error
	calls int
	cfg   ai.Config
}

func (f *fakeAI) ExtractTitle(ctx context.Context, cfg ai.Config, raw string) (string, error) {
	f.calls++
	f.cfg = cfg
	return f.title, f.err
}

type mapSettings map[string]string

func (m mapSettings) GetConfig(ctx context.Context, key string) (string, error) { return m[key], nil }

const frierenRaw = "[LoliHouse] 葬送的芙莉莲 / Sousou no Frieren - 28 [WebRip 1080p HEVC-10bit AAC]"

func TestExtract_LocalOnlyNeverCallsAI(t *testing.T) {
	client := &fakeAI{title: "AI Title"}
	e := NewTitleExtractor(client, mapSettings{model.ConfigKeyParserPriority: "local-only"}, ai.Config{}, logging.Discard())

	assert.Equal(t, "Sousou no Frieren", e.Extract(context.Background(), frierenRaw))
	assert.Zero(t, client.calls)
}

func TestExtract_DefaultsToLocal(t *testing.T) {
	client := &fakeAI{title: "AI Title"}
	e := NewTitleExtractor(client, mapSettings{}, ai.Config{}, logging.Discard())
	assert.Equal(t, "Sousou no Frieren", e.Extract(context.Background(), frierenRaw))
	assert.Zero(t, client.calls)
}

func TestExtract_AIFirst(t *testing.T) {
	client := &fakeAI{title: "Frieren"}
	settings := mapSettings{
		model.ConfigKeyParserPriority: "ai-first",
		model.ConfigKeyAIAPIKey:       "k",
		model.ConfigKeyAIModel:        "m2",
	}
	e := NewTitleExtractor(client, settings, ai.Config{Endpoint: "https://llm/v1", Model: "m1"}, logging.Discard())

	assert.Equal(t, "Frieren", e.Extract(context.Background(), frierenRaw))
	assert.Equal(t, ai.Config{Endpoint: "https://llm/v1", APIKey: "k", Model: "m2"}, client.cfg)
}

func TestExtract_AIFailureFallsBack(t *testing.T) {
	client := &fakeAI{err: errors.New("bad json")}
	e := NewTitleExtractor(client, mapSettings{model.ConfigKeyParserPriority: "ai-first"}, ai.Config{}, logging.Discard())

	assert.Equal(t, "Sousou no Frieren", e.Extract(context.Background(), frierenRaw))
	assert.Equal(t, 1, client.calls)
}

func TestExtract_NothingFound(t *testing.T) {
	e := NewTitleExtractor(nil, nil, ai.Config{}, logging.Discard())
	assert.Empty(t, e.Extract(context.Background(), "[Group][01][1080p]"))
}
