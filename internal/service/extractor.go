package service

import (
	"context"

	"github.com/pokerjest/animerss/internal/ai"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/internal/parser"
	"github.com/sirupsen/logrus"
)

type AIClient interface {
	ExtractTitle(ctx context.Context, cfg ai.Config, raw string) (string, error)
}

type SettingsReader interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// TitleExtractor picks between the local grammar and the AI extractor
// according to the parser_priority setting.
type TitleExtractor struct {
	ai       AIClient
	settings SettingsReader
	defaults ai.Config
	log      *logrus.Entry
}

func NewTitleExtractor(client AIClient, settings SettingsReader, defaults ai.Config, log *logrus.Entry) *TitleExtractor {
	return &TitleExtractor{ai: client, settings: settings, defaults: defaults, log: log}
}

// Extract returns "" when no title could be found. It never fails.
func (e *TitleExtractor) Extract(ctx context.Context, raw string) string {
	if e.priority(ctx) == model.PriorityAIFirst && e.ai != nil {
		title, err := e.ai.ExtractTitle(ctx, e.aiConfig(ctx), raw)
		if err == nil && title != "" {
			return title
		}
		e.log.WithError(err).WithField("raw", raw).Debug("ai extraction failed, using local parser")
	}
	return parser.ParseReleaseTitle(raw)
}

func (e *TitleExtractor) priority(ctx context.Context) model.ParserPriority {
	v := e.setting(ctx, model.ConfigKeyParserPriority)
	if model.ParserPriority(v) == model.PriorityAIFirst {
		return model.PriorityAIFirst
	}
	return model.PriorityLocalOnly
}

func (e *TitleExtractor) aiConfig(ctx context.Context) ai.Config {
	cfg := e.defaults
	if v := e.setting(ctx, model.ConfigKeyAIEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := e.setting(ctx, model.ConfigKeyAIAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := e.setting(ctx, model.ConfigKeyAIModel); v != "" {
		cfg.Model = v
	}
	return cfg
}

func (e *TitleExtractor) setting(ctx context.Context, key string) string {
	if e.settings == nil {
		return ""
	}
	v, err := e.settings.GetConfig(ctx, key)
	if err != nil {
		e.log.WithError(err).WithField("key", key).Warn("read setting")
		return ""
	}
	return v
}
