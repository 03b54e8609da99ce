package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/animerss/internal/event"
)

// SSEHandler 处理 Server-Sent Events 连接
func (s *Server) SSEHandler(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan event.Event, 64)

	// 非阻塞发送，避免慢客户端阻塞总线
	bridge := func(e event.Event) {
		select {
		case clientChan <- e:
		default:
		}
	}

	// 单个订阅覆盖所有主题，客户端按发布顺序收到事件
	subID := s.bus.SubscribeTopics(bridge, event.AllTypes...)
	defer func() {
		for _, t := range event.AllTypes {
			s.bus.Unsubscribe(t, subID)
		}
		s.log.Debug("SSE client disconnected")
	}()

	c.SSEvent("message", "connected")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case evt := <-clientChan:
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				s.log.WithError(err).Warn("SSE marshal")
				continue
			}
			c.SSEvent(string(evt.Type), string(data))
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
