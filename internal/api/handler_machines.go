package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/status"
)

const unknownLocation = "---"

type machineRow struct {
	ID          string        `json:"id"`
	Location    string        `json:"location"`
	Temperature float64       `json:"temperature"`
	Status      status.Status `json:"status"`
	LastSeen    string        `json:"last_seen"`
}

// ListMachines returns the overview row of every machine in the session.
func (h *Handler) ListMachines(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()

	machines := identityOf(c).Machines
	rows := make([]machineRow, 0, len(machines))
	for _, mid := range machines {
		info, err := h.store.GetMachineInfo(ctx, mid)
		if errors.Is(err, parse.ErrInvalidKey) {
			h.log.Warn("machine id in session cannot be read", zap.String("machine_id", mid), zap.Error(err))
			info, err = nil, nil
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		row := machineRow{ID: mid, Location: unknownLocation, LastSeen: unknownLocation}
		if info != nil {
			if info.Location != "" {
				row.Location = info.Location
			}
			if info.LastSeen != "" {
				row.LastSeen = info.LastSeen
			}
			row.Temperature = info.Temperature
		}
		row.Status = h.evaluator.Classify(info, now)
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, gin.H{"machines": rows})
}

// GetSlots lists a machine's slots, numeric ids first.
func (h *Handler) GetSlots(c *gin.Context) {
	mid := c.Param("mid")
	slots, err := h.store.GetSlots(c.Request.Context(), mid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(slots) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data or device offline"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"machine_id": mid, "slots": slots.Sorted()})
}

type slotUpdate struct {
	ID      string `json:"id" binding:"required"`
	Price   *int   `json:"price" binding:"required,min=0"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

type saveSlotsRequest struct {
	Slots []slotUpdate `json:"slots" binding:"required,min=1,dive"`
}

// SaveSlots writes price and enabled for each listed slot in order. It
// stops at the first failure; slots before it stay saved.
func (h *Handler) SaveSlots(c *gin.Context) {
	var req saveSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mid := c.Param("mid")
	for i, u := range req.Slots {
		if err := h.store.UpdateSlot(c.Request.Context(), mid, u.ID, *u.Price, *u.Enabled); err != nil {
			c.Error(err)
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				h.log.Error("slot save interrupted", zap.String("machine_id", mid), zap.String("slot_id", u.ID), zap.Error(err))
			}
			c.AbortWithStatusJSON(code, gin.H{
				"error":  err.Error(),
				"saved":  i,
				"failed": u.ID,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(req.Slots)})
}

// OpenGate asks the machine to unlock one slot.
func (h *Handler) OpenGate(c *gin.Context) {
	mid, sid := c.Param("mid"), c.Param("sid")
	now := h.now()
	cmd := model.OpenGateCommand{
		SlotID:    sid,
		Timestamp: float64(now.UnixNano()) / 1e9,
	}
	if err := h.store.SendOpenCommand(c.Request.Context(), mid, cmd); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Restock records a new product in a slot, optionally with a photo.
// Without a photo the slot keeps its current one.
func (h *Handler) Restock(c *gin.Context) {
	ctx := c.Request.Context()
	mid, sid := c.Param("mid"), c.Param("sid")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	name := strings.TrimSpace(c.PostForm("product_name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_name is required"})
		return
	}
	price, err := strconv.Atoi(strings.TrimSpace(c.PostForm("price")))
	if err != nil || price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a non-negative integer"})
		return
	}

	slots, err := h.store.GetSlots(ctx, mid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := slots[sid]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("slot %s not found", sid)})
		return
	}

	restock := model.Restock{ProductName: name, Price: price, At: h.now()}

	fh, err := c.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		if !photoExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo must be jpg, jpeg or png"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		url, err := h.photos.StoreSlotPhoto(ctx, mid, sid, f)
		if err != nil {
			h.fail(c, err)
			return
		}
		restock.ImageURL = url
	}

	if err := h.store.RestockSlot(ctx, mid, sid, restock); err != nil {
		h.fail(c, err)
		return
	}

	imageURL := restock.ImageURL
	if imageURL == "" {
		imageURL = slots[sid].ImageURL
	}
	c.JSON(http.StatusOK, model.Slot{
		ID:          sid,
		Price:       price,
		Enabled:     true,
		ProductName: name,
		ImageURL:    imageURL,
		LastRestock: parse.FormatLocal(restock.At, h.loc),
	})
}
