package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/animerss/internal/db"
	"github.com/pokerjest/animerss/internal/event"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/internal/service"
	"github.com/sirupsen/logrus"
)

// Store is the subset of persistence the handlers touch directly.
type Store interface {
	ListChannels(ctx context.Context) ([]model.NotificationChannel, error)
	CreateChannel(ctx context.Context, ch *model.NotificationChannel) error
	DeleteChannel(ctx context.Context, id uint) error
	AllConfig(ctx context.Context) (map[string]string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type Server struct {
	subs  *service.SubscriptionService
	store Store
	bus   event.Bus
	log   *logrus.Entry
}

func NewServer(subs *service.SubscriptionService, store Store, bus event.Bus, log *logrus.Entry) *Server {
	return &Server{subs: subs, store: store, bus: bus, log: log}
}

// InitRoutes 注册所有路由
func (s *Server) InitRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.GET("/subscriptions", s.ListSubscriptionsHandler)
		api.POST("/subscriptions", s.CreateSubscriptionHandler)
		api.GET("/subscriptions/:name", s.GetSubscriptionHandler)
		api.PUT("/subscriptions/:name", s.UpdateSubscriptionHandler)
		api.DELETE("/subscriptions/:name", s.DeleteSubscriptionHandler)
		api.POST("/subscriptions/:name/refresh", s.RefreshSubscriptionHandler)
		api.GET("/subscriptions/:name/animes", s.ListAnimesHandler)

		api.POST("/scheduler/stop", s.StopSchedulerHandler)
		api.POST("/scheduler/start", s.StartSchedulerHandler)

		api.GET("/channels", s.ListChannelsHandler)
		api.POST("/channels", s.CreateChannelHandler)
		api.DELETE("/channels/:id", s.DeleteChannelHandler)

		api.GET("/settings", s.GetSettingsHandler)
		api.PUT("/settings", s.UpdateSettingsHandler)

		api.GET("/events", s.SSEHandler)
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrConflict), errors.Is(err, service.ErrRefreshing):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
