package executions

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ASSET-ledger/internal/platform/apierr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(read, write gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	write.POST("/maintenance/executions", h.Record)
	read.GET("/maintenance/executions", h.List)
	read.GET("/maintenance/executions/:execution_id", h.Get)
}

func (h *Handler) Record(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.RecordExecution(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/maintenance/executions/"+res.ExecutionID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.GetExecution(c.Request.Context(), c.Param("execution_id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /maintenance/executions?asset_id=&schedule_entry_id=&from=&to=
func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("asset_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "asset_id must be a number"))
			return
		}
		f.AssetID = &id
	}
	if v := c.Query("schedule_entry_id"); v != "" {
		f.ScheduleEntryID = &v
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		f.Offset = v
	}
	res, err := h.svc.ListExecutions(c.Request.Context(), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
