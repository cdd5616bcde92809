package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-relief-pipeline/internal/feed"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

const (
	defaultReporter = "web_user"
	maxListLimit    = 500
	keepAlive       = 15 * time.Second
)

// Processor runs a report through the pipeline and returns its dashboard event.
type Processor interface {
	Process(ctx context.Context, r models.Report, source string) (*feed.Event, error)
}

type Handler struct {
	processor Processor
	store     repository.Store
	feed      *feed.Feed
	gatherer  prometheus.Gatherer
}

// NewHandler builds the HTTP handler. gatherer may be nil, in which case
// /metrics is not served.
func NewHandler(processor Processor, store repository.Store, f *feed.Feed, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		processor: processor,
		store:     store,
		feed:      f,
		gatherer:  gatherer,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/incidents", h.createIncident)
	r.GET("/api/incidents", h.listIncidents)
	r.GET("/api/map", h.incidentMap)
	r.GET("/api/incidents/:id", h.getIncident)
	r.GET("/api/stream", h.stream)
	r.GET("/api/stream/live", h.streamLive)
	r.GET("/healthz", h.health)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *Handler) createIncident(c *gin.Context) {
	fields := map[string]any{}
	if c.ContentType() == gin.MIMEJSON {
		// Malformed JSON leaves fields empty and falls through to the 400 below.
		_ = c.ShouldBindJSON(&fields)
	} else if err := c.Request.ParseForm(); err == nil {
		for k := range c.Request.PostForm {
			fields[k] = c.Request.PostForm.Get(k)
		}
	}

	r := models.ReportFromFields(fields, defaultReporter)
	if r.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Text field is required",
		})
		return
	}

	ev, err := h.processor.Process(c.Request.Context(), r, feed.SourceWeb)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to process incident",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"event":  ev,
	})
}

func (h *Handler) listIncidents(c *gin.Context) {
	incidents, ok := h.recentIncidents(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}

func (h *Handler) incidentMap(c *gin.Context) {
	incidents, ok := h.recentIncidents(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(incidents))
}

func (h *Handler) recentIncidents(c *gin.Context) ([]models.Incident, bool) {
	limit := repository.DefaultListLimit
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxListLimit {
			limit = lim
		}
	}

	incidents, err := h.store.ListIncidents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch incidents",
		})
		return nil, false
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	return incidents, true
}

func (h *Handler) getIncident(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	inc, err := h.store.GetIncident(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch incident"})
		return
	}
	if inc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	transitions, err := h.store.ListTransitions(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transitions"})
		return
	}
	if transitions == nil {
		transitions = []models.Transition{}
	}

	c.JSON(http.StatusOK, gin.H{
		"incident":    inc,
		"transitions": transitions,
	})
}

func (h *Handler) stream(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.feed.Snapshot()})
}

// streamLive replays the feed backlog, oldest first, then pushes new events as
// server-sent events until the client goes away or the feed is closed.
func (h *Handler) streamLive(c *gin.Context) {
	sub := h.feed.Subscribe()
	defer func() {
		if skipped := h.feed.Unsubscribe(sub.ID); skipped > 0 {
			slog.Warn("live stream lagged", "subscriber", sub.ID, "skipped", skipped)
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for i := len(sub.Backlog) - 1; i >= 0; i-- {
		c.SSEvent("incident", sub.Backlog[i])
	}
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			c.SSEvent("incident", ev)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		}
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
