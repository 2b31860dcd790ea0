package ws

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cory-johannsen/battletanks/internal/event"
	"github.com/cory-johannsen/battletanks/internal/storage/history"
)

// HistoryStatus is the /api/history/status response body.
type HistoryStatus struct {
	Redis string `json:"redis"`
}

// HistoryHandler serves read-only access to room history.
type HistoryHandler struct {
	cache        history.Cache
	defaultCount int
}

// NewHistoryHandler creates a HistoryHandler.
//
// Precondition: cache must be non-nil.
// Postcondition: Requests without a count read defaultCount events, or one when
// defaultCount is not positive.
func NewHistoryHandler(cache history.Cache, defaultCount int) *HistoryHandler {
	return &HistoryHandler{cache: cache, defaultCount: max(defaultCount, 1)}
}

func (h *HistoryHandler) register(r gin.IRouter) {
	g := r.Group("/api/history")
	g.GET("/status", h.Status)
	g.GET("/:roomId", h.Room)
}

// Room writes the most recent events of a room in chronological order.
//
// Postcondition: Responds 200 with a JSON array (empty when the room has no history or
// the cache is unavailable), or 400 when count is not an integer.
func (h *HistoryHandler) Room(c *gin.Context) {
	count := h.defaultCount
	if raw, ok := c.GetQuery("count"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be an integer"})
			return
		}
		count = max(n, 1)
	}

	events := h.cache.Read(c.Request.Context(), c.Param("roomId"), count)
	if events == nil {
		events = []event.GameEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// Status reports whether the history store answers.
func (h *HistoryHandler) Status(c *gin.Context) {
	st := HistoryStatus{Redis: "unavailable"}
	if h.cache.IsAvailable(c.Request.Context()) {
		st.Redis = "connected"
	}
	c.JSON(http.StatusOK, st)
}
