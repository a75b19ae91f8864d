package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListUsers returns the dealer accounts and the machine registry.
func (h *Handler) ListUsers(c *gin.Context) {
	users, registry, err := h.gate.ListUsers(c.Request.Context(), identityOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "registry": registry})
}

type updateUserRequest struct {
	Approved *bool    `json:"approved" binding:"required"`
	Machines []string `json:"machines"`
}

// UpdateUser sets a dealer's approval and machine set.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved is required"})
		return
	}

	uid := c.Param("uid")
	if err := h.gate.SetUserAccess(c.Request.Context(), identityOf(c), uid, *req.Approved, req.Machines); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "approved": *req.Approved, "machines": req.Machines})
}
