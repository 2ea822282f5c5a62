package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Orch *orch.Orchestrator
}

type CreateRoomRequest struct {
	Title  string `json:"title"`
	HostID string `json:"hostId"`
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"directory": h.Orch.Directory.Backend(),
		"sockets":   h.Orch.Registry.Count(),
	})
}

// ActiveRooms lists the rooms with members on this instance.
func (h *Handlers) ActiveRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Orch.Rooms.List()})
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	owner := domain.UserID(req.HostID)
	if u := identityOf(c); u != nil {
		owner = u.ID
	}
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing host"})
		return
	}
	room, err := domain.NewRoom(req.Title, owner)
	if err != nil {
		if errors.Is(err, domain.ErrRoomTitleEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("new room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if err := h.Orch.RoomStore.Create(c.Request.Context(), room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room.Code)).Str("host", string(owner)).Msg("room created")
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.Orch.RoomStore.FindByCode(c.Request.Context(), domain.RoomCode(c.Param("code")))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *Handlers) Participants(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	roster, err := h.Orch.Roster(c.Request.Context(), code)
	if err != nil {
		h.storeError(c, err)
		return
	}
	links := 0
	if g, ok := h.Orch.Rooms.Get(code); ok {
		links = g.Mesh().Links()
	}
	c.JSON(http.StatusOK, gin.H{"participants": roster, "links": links})
}

func (h *Handlers) ChatHistory(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgs, err := h.Orch.Messages.History(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("store")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}
