package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metrics"
	"github.com/nainovate/Evaluation-UI-sub000/internal/runs"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

type WebSocketHandler struct {
	executor *runs.Executor
}

func NewWebSocketHandler(executor *runs.Executor) *WebSocketHandler {
	return &WebSocketHandler{executor: executor}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// StreamRun sends the run's current state, then every update until the run
// finishes or the client goes away.
func (h *WebSocketHandler) StreamRun(c *websocket.Conn) {
	runID := c.Params("id")
	logger.Info("Run stream opened", zap.String("run_id", runID))
	metrics.WebSocketConnections.Inc()

	defer func() {
		metrics.WebSocketConnections.Dec()
		c.Close()
		logger.Info("Run stream closed", zap.String("run_id", runID))
	}()

	// subscribe first so no update between the snapshot and the stream is lost
	updates, cancel := h.executor.Subscribe(runID)
	defer cancel()

	run, err := h.executor.Get(context.Background(), runID)
	if err != nil {
		h.sendError(c, "Run not found")
		return
	}
	if err := h.sendRun(c, *run); err != nil {
		return
	}

	// the client never sends anything; a read error means it went away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				h.sendComplete(c, runID)
				return
			}
			if err := h.sendRun(c, update); err != nil {
				logger.Warn("Failed to push run update", zap.String("run_id", runID), zap.Error(err))
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *WebSocketHandler) sendRun(c *websocket.Conn, run models.EvaluationRun) error {
	msg := map[string]interface{}{
		"type":     "status",
		"run":      run,
		"progress": run.Progress(),
	}
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, runID string) {
	run, err := h.executor.Get(context.Background(), runID)
	if err != nil {
		return
	}
	msg := map[string]interface{}{
		"type": "complete",
		"run":  run,
	}
	c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
