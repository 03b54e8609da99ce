package main

import (
	"context"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pokerjest/animerss/internal/app"
	"github.com/pokerjest/animerss/internal/config"
)

// commandContext builds the App lazily so --help never touches the database.
type commandContext struct {
	configFlag *string

	once   sync.Once
	app    *app.App
	appErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.once.Do(func() {
		_ = godotenv.Load()
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.appErr = err
			return
		}
		// CLI 输出走 stdout，日志只保留警告
		if cfg.Log.Level == "info" || cfg.Log.Level == "debug" {
			cfg.Log.Level = "warn"
		}
		c.app, c.appErr = app.New(ctx, cfg)
	})
	return c.app, c.appErr
}

func (c *commandContext) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := c.ensureApp(ctx)
	if err != nil {
		return err
	}
	return fn(a)
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}
