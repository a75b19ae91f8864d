package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
	// Machines narrows the alerts to a subset of the session's machines.
	// Empty means all of them.
	Machines []string `json:"machines"`
}

// PutSubscription creates or replaces the caller's push subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id := identityOf(c)
	machines := id.Machines
	if len(req.Machines) > 0 {
		machines = make([]string, 0, len(req.Machines))
		for _, m := range req.Machines {
			if !id.CanAccess(m) {
				h.fail(c, access.ErrForbidden)
				return
			}
			machines = append(machines, m)
		}
	}

	sub := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   id.UserID,
		Machines: machines,
	}
	if err := h.store.PutSubscription(c.Request.Context(), sub); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"machines": machines})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, ok := h.ownSubscription(c, req.Endpoint); !ok {
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSubscription reports which machines a subscription alerts for.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}
	sub, ok := h.ownSubscription(c, endpoint)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"machines": sub.Machines})
}

// ownSubscription loads the subscription at endpoint and checks that the
// caller created it. Someone else's subscription looks missing.
func (h *Handler) ownSubscription(c *gin.Context, endpoint string) (*model.PushSubscription, bool) {
	sub, err := h.store.GetSubscription(c.Request.Context(), endpoint)
	if err == nil && sub.UserID != identityOf(c).UserID {
		err = store.ErrNotFound
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return nil, false
	}
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sub, true
}
