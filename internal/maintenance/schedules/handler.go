package schedules

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ASSET-ledger/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(read, write gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	write.POST("/maintenance/schedules", h.CreateEntry)
	read.GET("/maintenance/schedules", h.ListByAsset) // ?asset_id=
	read.GET("/maintenance/schedules/:entry_id", h.GetEntry)
	write.PATCH("/maintenance/schedules/:entry_id", h.UpdateEntry)
	write.PUT("/maintenance/schedules/:entry_id/status", h.SetStatus)

	read.GET("/maintenance/grid/:asset_id/:year", h.WeekGrid)
	read.GET("/maintenance/weeks/:year/:month/:week", h.EntriesForWeek)
}

func (h *Handler) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.CreateEntry(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/maintenance/schedules/"+res.EntryID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetEntry(c *gin.Context) {
	res, err := h.svc.GetEntry(c.Request.Context(), c.Param("entry_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListByAsset(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("asset_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "asset_id query is required"))
		return
	}
	items, err := h.svc.ListByAsset(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) UpdateEntry(c *gin.Context) {
	var req UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.UpdateEntry(c.Request.Context(), c.Param("entry_id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "status is required"))
		return
	}
	res, err := h.svc.SetStatus(c.Request.Context(), c.Param("entry_id"), req.Status)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) WeekGrid(c *gin.Context) {
	assetID, err1 := strconv.ParseInt(c.Param("asset_id"), 10, 64)
	year, err2 := strconv.Atoi(c.Param("year"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "asset_id and year must be numbers"))
		return
	}
	res, err := h.svc.WeekGridFor(c.Request.Context(), assetID, year)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) EntriesForWeek(c *gin.Context) {
	year, month, week, ok := WeekParams(c)
	if !ok {
		return
	}
	res, err := h.svc.EntriesForWeek(c.Request.Context(), year, month, week)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// WeekParams は :year/:month/:week を読む。失敗時は 400 を書いて false。
func WeekParams(c *gin.Context) (year, month, week int, ok bool) {
	var err1, err2, err3 error
	year, err1 = strconv.Atoi(c.Param("year"))
	month, err2 = strconv.Atoi(c.Param("month"))
	week, err3 = strconv.Atoi(c.Param("week"))
	if err1 != nil || err2 != nil || err3 != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "year, month and week must be numbers"))
		return 0, 0, 0, false
	}
	return year, month, week, true
}
