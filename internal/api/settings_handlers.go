package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/internal/service"
)

const maskedSecret = "******"

var settingKeys = map[string]bool{
	model.ConfigKeyParserPriority: true,
	model.ConfigKeyAIEndpoint:     true,
	model.ConfigKeyAIAPIKey:       true,
	model.ConfigKeyAIModel:        true,
	model.ConfigKeyTrackers:       true,
}

func (s *Server) GetSettingsHandler(c *gin.Context) {
	all, err := s.store.AllConfig(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make(map[string]string, len(settingKeys))
	for k := range settingKeys {
		out[k] = all[k]
	}
	if out[model.ConfigKeyAIAPIKey] != "" {
		out[model.ConfigKeyAIAPIKey] = maskedSecret
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) UpdateSettingsHandler(c *gin.Context) {
	var in map[string]string
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	for k, v := range in {
		if !settingKeys[k] {
			s.writeError(c, fmt.Errorf("%w: unknown setting %q", service.ErrInvalidInput, k))
			return
		}
		if k == model.ConfigKeyParserPriority {
			p := model.ParserPriority(v)
			if p != model.PriorityLocalOnly && p != model.PriorityAIFirst {
				s.writeError(c, fmt.Errorf("%w: parser_priority must be local-only or ai-first", service.ErrInvalidInput))
				return
			}
		}
	}
	for k, v := range in {
		// GET 返回的是掩码，原样提交时保留已有密钥
		if k == model.ConfigKeyAIAPIKey && v == maskedSecret {
			continue
		}
		if err := s.store.SetConfig(c.Request.Context(), k, v); err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListChannelsHandler(c *gin.Context) {
	chs, err := s.store.ListChannels(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chs)
}

func (s *Server) CreateChannelHandler(c *gin.Context) {
	var ch model.NotificationChannel
	if err := c.ShouldBindJSON(&ch); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	switch ch.Type {
	case model.ChannelBark, model.ChannelGotify, model.ChannelServerChan:
	default:
		s.writeError(c, fmt.Errorf("%w: unknown channel type %q", service.ErrInvalidInput, ch.Type))
		return
	}
	if ch.Name == "" {
		s.writeError(c, fmt.Errorf("%w: name is required", service.ErrInvalidInput))
		return
	}
	if err := s.store.CreateChannel(c.Request.Context(), &ch); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (s *Server) DeleteChannelHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: bad id", service.ErrInvalidInput))
		return
	}
	if err := s.store.DeleteChannel(c.Request.Context(), uint(id)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
