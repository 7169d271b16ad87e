package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"queue-purger/internal/models"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueueOperator runs purges and status checks against the broker.
type QueueOperator interface {
	Purge(ctx context.Context, trigger string, queues []string) (models.PurgeRun, error)
	Status(ctx context.Context, queues []string) ([]models.QueueStatus, error)
}

// RunLister reads the purge audit trail.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// Deps wires the handlers. Runs is optional.
type Deps struct {
	Queues       QueueOperator
	Runs         RunLister
	PurgeQueues  []string
	StatusQueues []string
}

// PurgeRequest optionally narrows a purge to the given queues.
type PurgeRequest struct {
	Queues []string `json:"queues"`
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
	})

	r.GET("/queues", getQueueStatus(deps))
	r.POST("/queues/purge", purgeQueues(deps))
	r.GET("/runs", listRuns(deps))
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIResponse{Success: false, Error: &APIError{Code: code, Message: message}})
}

// getQueueStatus reports message and consumer counts for the status queues
func getQueueStatus(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Queues == nil {
			fail(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Queue provider not available")
			return
		}
		statuses, err := deps.Queues.Status(c.Request.Context(), deps.StatusQueues)
		if err != nil {
			fail(c, http.StatusBadGateway, "BROKER_UNAVAILABLE", err.Error())
			return
		}
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: statuses})
	}
}

// purgeQueues purges the requested queues, or the configured list when the
// request names none
func purgeQueues(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Queues == nil {
			fail(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Queue provider not available")
			return
		}

		var req PurgeRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		queues := req.Queues
		if len(queues) == 0 {
			queues = deps.PurgeQueues
		}

		run, err := deps.Queues.Purge(c.Request.Context(), models.TriggerAPI, queues)
		if err != nil {
			fail(c, http.StatusBadGateway, "BROKER_UNAVAILABLE", err.Error())
			return
		}
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: run})
	}
}

// listRuns returns recent purge runs from the audit trail
func listRuns(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Runs == nil {
			fail(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Database connection not available")
			return
		}

		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				fail(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		runs, err := deps.Runs.ListRuns(c.Request.Context(), limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
			return
		}
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: runs})
	}
}
