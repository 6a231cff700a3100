// Package api provides the read-only HTTP surface: health, stats, and room
// inspection. Room lifecycle stays implicit; rooms are created and deleted
// only by the sync engine.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LaveshwarPS/canvascode/internal/room"
	"github.com/LaveshwarPS/canvascode/internal/ws"
)

// Handler serves the REST endpoints.
type Handler struct {
	registry *room.Registry
	router   *ws.Router
}

// New creates a Handler over the live registry and session router.
func New(registry *room.Registry, router *ws.Router) *Handler {
	return &Handler{
		registry: registry,
		router:   router,
	}
}

// RegisterRoutes attaches the API routes to a gin router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Stats)
	rg.GET("/rooms", h.ListRooms)
	rg.GET("/rooms/:id", h.GetRoom)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c *gin.Context) {
	activeOps := 0
	for _, r := range h.registry.Rooms() {
		activeOps += r.Log.ActiveCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"active_rooms":      h.registry.RoomCount(),
		"active_sessions":   h.registry.SessionCount(),
		"connected_clients": h.router.Hub().ClientCount(),
		"active_operations": activeOps,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomResponse describes one room to API consumers.
type RoomResponse struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Sessions      int       `json:"sessions"`
	Operations    int       `json:"operations"`
	ActiveHistory int       `json:"active_history"`
	CurrentIndex  int       `json:"current_index"`
}

func roomResponse(r *room.Room) RoomResponse {
	return RoomResponse{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt(),
		Sessions:      r.SessionCount(),
		Operations:    r.Log.Len(),
		ActiveHistory: r.Log.ActiveCount(),
		CurrentIndex:  r.Log.CurrentIndex(),
	}
}

// ListRooms handles GET /api/rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms := h.registry.Rooms()

	response := make([]RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		response = append(response, roomResponse(r))
	}

	c.JSON(http.StatusOK, gin.H{"rooms": response})
}

// GetRoom handles GET /api/rooms/:id. Unlike the sync engine, the read API
// does not fabricate rooms: inspecting a room that never existed is a 404.
func (h *Handler) GetRoom(c *gin.Context) {
	roomID := c.Param("id")

	r := h.registry.Get(roomID)
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	resp := struct {
		RoomResponse
		Roster []*room.Session `json:"roster"`
	}{
		RoomResponse: roomResponse(r),
		Roster:       r.Roster(),
	}

	c.JSON(http.StatusOK, resp)
}
