package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/mw"
	"vending-panel-backend/internal/session"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Name            string   `json:"user"`
	Email           string   `json:"email"`
	IsAdmin         bool     `json:"is_admin"`
	Machines        []string `json:"machines"`
	SelectedMachine string   `json:"selected_machine,omitempty"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		Name:            s.Identity.Name,
		Email:           s.Identity.Email,
		IsAdmin:         s.Identity.IsAdmin(),
		Machines:        s.Identity.Machines,
		SelectedMachine: s.SelectedMachine,
	}
}

// Login authenticates and starts a session.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	id, err := h.gate.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	s, token, err := h.sessions.Create(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSessionCookie(c, token, int(h.sessions.TTL().Seconds()))

	c.JSON(http.StatusOK, gin.H{
		"session": toSessionResponse(s),
		"token":   token,
	})
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account waiting for approval.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name, email and password are required"})
		return
	}

	uid, err := h.gate.Register(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": uid})
}

// Logout ends the caller's session, if any, and clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	if token := mw.TokenFrom(c); token != "" {
		if s, err := h.sessions.Resolve(token); err == nil {
			h.sessions.Destroy(s.ID)
		}
	}
	h.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// GetSession returns the current identity and selected machine.
func (h *Handler) GetSession(c *gin.Context) {
	s, _ := mw.CurrentSession(c)
	c.JSON(http.StatusOK, toSessionResponse(s))
}

type selectMachineRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
}

// SelectMachine picks the machine the session is managing.
func (h *Handler) SelectMachine(c *gin.Context) {
	var req selectMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "machine_id is required"})
		return
	}
	h.changeSelection(c, req.MachineID)
}

// ClearMachine returns the session to the machine overview.
func (h *Handler) ClearMachine(c *gin.Context) {
	h.changeSelection(c, "")
}

func (h *Handler) changeSelection(c *gin.Context, mid string) {
	s, _ := mw.CurrentSession(c)
	s, err := h.sessions.SelectMachine(s, mid)
	if err != nil {
		h.fail(c, err)
		return
	}
	mw.SetCurrentSession(c, s)
	c.JSON(http.StatusOK, toSessionResponse(s))
}

func (h *Handler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(mw.CookieName, token, maxAge, "/", "", h.secure, true)
}

// identityOf returns the identity of the request's session.
func identityOf(c *gin.Context) access.Identity {
	s, _ := mw.CurrentSession(c)
	return s.Identity
}
