package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/animerss/internal/service"
)

func (s *Server) ListSubscriptionsHandler(c *gin.Context) {
	subs, err := s.subs.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (s *Server) CreateSubscriptionHandler(c *gin.Context) {
	var in service.SubscribeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	sub, err := s.subs.Subscribe(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) GetSubscriptionHandler(c *gin.Context) {
	sub, err := s.subs.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) UpdateSubscriptionHandler(c *gin.Context) {
	var in service.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	sub, err := s.subs.Update(c.Request.Context(), c.Param("name"), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// DeleteSubscriptionHandler accepts ?force=true to delete during a refresh.
func (s *Server) DeleteSubscriptionHandler(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	removed, err := s.subs.Unsubscribe(c.Request.Context(), c.Param("name"), force)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed_releases": removed})
}

func (s *Server) RefreshSubscriptionHandler(c *gin.Context) {
	if err := s.subs.Refresh(c.Request.Context(), c.Param("name")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) ListAnimesHandler(c *gin.Context) {
	animes, err := s.subs.Animes(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, animes)
}

func (s *Server) StopSchedulerHandler(c *gin.Context) {
	s.subs.PauseAll()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) StartSchedulerHandler(c *gin.Context) {
	if err := s.subs.ResumeAll(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}
