package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/sales"
)

type salesResponse struct {
	// Report is null until the machine has sold something.
	Report *sales.Report `json:"report"`
	Sales  []model.Sale  `json:"sales"`
}

// GetSales returns a machine's sales with today/month/total aggregates.
func (h *Handler) GetSales(c *gin.Context) {
	raw, err := h.store.GetSales(c.Request.Context(), c.Param("mid"))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := salesResponse{Sales: h.normalizer.Normalize(raw)}
	if len(resp.Sales) == 0 {
		resp.Sales = []model.Sale{}
		c.JSON(http.StatusOK, resp)
		return
	}

	report := sales.Aggregate(resp.Sales, h.now().In(h.loc))
	resp.Report = &report
	c.JSON(http.StatusOK, resp)
}
