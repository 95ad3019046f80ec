package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Jam/internal/adapters/backend"
	"github.com/dkeye/Jam/internal/app"
	"github.com/dkeye/Jam/internal/app/orch"
	"github.com/dkeye/Jam/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Orch *orch.Orchestrator
}

type NickRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

type ToggleRequest struct {
	Slot string `json:"slot" binding:"required"`
}

type ToggleResponse struct {
	Selection []domain.Slot `json:"selection"`
}

type SaveResponse struct {
	app.ViewState
	Warning string `json:"warning,omitempty"`
}

// RequireNickname rejects requests from clients that have not picked a nickname.
func RequireNickname() gin.HandlerFunc {
	return func(c *gin.Context) {
		nick, _ := sessions.Default(c).Get(nicknameKey).(string)
		if nick == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "set a nickname first"})
			return
		}
		c.Set(nicknameKey, nick)
		c.Next()
	}
}

func viewKey(c *gin.Context) app.ViewKey {
	return app.ViewKey{
		Client: app.ClientID(c.GetString(clientTokenKey)),
		Room:   domain.RoomID(c.Param("roomID")),
	}
}

func viewer(c *gin.Context) domain.Nickname {
	return domain.Nickname(c.GetString(nicknameKey))
}

func (h *Handlers) whoAmI(c *gin.Context) {
	nick, _ := sessions.Default(c).Get(nicknameKey).(string)
	c.JSON(http.StatusOK, gin.H{"nickname": nick, "client": c.GetString(clientTokenKey)})
}

func (h *Handlers) setNickname(c *gin.Context) {
	var req NickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid nickname"})
		return
	}
	nick, err := domain.NewNickname(req.Nickname)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	prev, _ := s.Get(nicknameKey).(string)
	s.Set(nicknameKey, string(nick))
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store session"})
		return
	}
	if prev != "" && prev != string(nick) {
		h.Orch.UnmountClient(app.ClientID(c.GetString(clientTokenKey)))
	}
	log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Str("nickname", string(nick)).Msg("nickname set")
	c.JSON(http.StatusOK, gin.H{"nickname": nick})
}

func (h *Handlers) mount(c *gin.Context) {
	key := viewKey(c)
	view, err := h.Orch.Mount(c.Request.Context(), key, viewer(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view.State(time.Time{}))
}

func (h *Handlers) unmount(c *gin.Context) {
	if !h.Orch.Unmount(viewKey(c)) {
		writeError(c, orch.ErrViewNotMounted)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) state(c *gin.Context) {
	view, err := h.Orch.ViewFor(viewKey(c), viewer(c))
	if err != nil {
		writeError(c, err)
		return
	}
	var day time.Time
	if raw := c.Query("date"); raw != "" {
		day, err = time.ParseInLocation(domain.DayLayout, raw, view.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must look like 2006-01-02"})
			return
		}
	}
	c.JSON(http.StatusOK, view.State(day))
}

func (h *Handlers) toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing slot"})
		return
	}
	sel, err := h.Orch.Toggle(viewKey(c), viewer(c), req.Slot)
	if errors.Is(err, domain.ErrMalformedSlot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{Selection: sel.Slots()})
}

func (h *Handlers) save(c *gin.Context) {
	key := viewKey(c)
	err := h.Orch.Save(c.Request.Context(), key, viewer(c))
	resp := SaveResponse{}
	switch {
	case err == nil:
	case errors.Is(err, app.ErrStaleAfterSave):
		resp.Warning = "saved, but the latest availability could not be loaded"
	default:
		writeError(c, err)
		return
	}
	st, err := h.Orch.State(key, viewer(c), time.Time{})
	if err != nil {
		writeError(c, err)
		return
	}
	resp.ViewState = st
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) refresh(c *gin.Context) {
	key := viewKey(c)
	if err := h.Orch.Refresh(c.Request.Context(), key, viewer(c)); err != nil {
		writeError(c, err)
		return
	}
	st, err := h.Orch.State(key, viewer(c), time.Time{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// writeError maps domain, view and backend failures onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var se *backend.StatusError
	switch {
	case errors.Is(err, orch.ErrViewNotMounted), errors.Is(err, app.ErrViewClosed):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrRoomNotConfirmed),
		errors.Is(err, domain.ErrRoomEnded):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrSaveInProgress), errors.Is(err, orch.ErrViewerChanged):
		status = http.StatusConflict
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		status = http.StatusNotFound
	}
	log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Msg("request failed")

	body := gin.H{"error": err.Error()}
	if se != nil && se.Detail != "" {
		body["detail"] = se.Detail
	}
	c.JSON(status, body)
}
