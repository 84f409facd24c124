package stock

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ASSET-ledger/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/assets/:asset_id/stock", h.GetStock)
	r.GET("/reports/low-stock", h.LowStock)
}

// GET /assets/:asset_id/stock
func (h *Handler) GetStock(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("asset_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "asset_id must be a number"))
		return
	}
	snap, err := h.svc.Snapshot(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GET /reports/low-stock?threshold=3
func (h *Handler) LowStock(c *gin.Context) {
	threshold := 0
	if v := c.Query("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "threshold must be a positive integer"))
			return
		}
		threshold = n
	}
	rep, err := h.svc.LowStockReport(c.Request.Context(), threshold)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, rep)
}
