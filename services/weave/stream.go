// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weave

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleStream handles GET /v1/weave/stream.
//
// Description:
//
//	Upgrades to a websocket and writes every layout frame delivered to its
//	subscription as a StreamMessage of type "frame". The most recent frame
//	is sent first, so a new client renders immediately. When the layout
//	shuts down a "closed" message and a close frame are sent.
//
//	Client messages are ignored; reading only serves pongs and close
//	detection.
//
// Response:
//
//	101 Switching Protocols
//	503 Service Unavailable: no frame source configured
func (h *Handlers) HandleStream(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStream")

	if h.frames == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "layout stream is not enabled",
			Code:  CodeUnavailable,
		})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		logger.Warn("Failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}

	frames, unsubscribe := h.frames.Subscribe()
	defer unsubscribe()

	ctx := c.Request.Context()
	if h.metrics != nil {
		h.metrics.StreamClients.Add(ctx, 1)
		defer h.metrics.StreamClients.Add(ctx, -1)
	}

	readerDone := make(chan struct{})
	defer func() {
		ws.Close()
		<-readerDone
	}()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	logger.Info("Stream client connected")
	sent := 0
	defer func() {
		logger.Info("Stream client disconnected", slog.Int("frames_sent", sent))
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-readerDone:
			return

		case <-ctx.Done():
			return

		case f, ok := <-frames:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteJSON(StreamMessage{Type: "closed"})
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "layout closed"))
				return
			}
			if err := ws.WriteJSON(StreamMessage{Type: "frame", Frame: &f}); err != nil {
				logger.Debug("Stream write failed", slog.String("error", err.Error()))
				return
			}
			sent++
			if h.metrics != nil {
				h.metrics.StreamFramesTotal.Add(ctx, 1)
			}

		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
