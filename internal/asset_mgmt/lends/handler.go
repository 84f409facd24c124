package lends

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ASSET-ledger/internal/platform/apierr"
	"ASSET-ledger/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(read, write gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 貸出
	write.POST("/loans", h.CreateLoan)
	read.GET("/loans", h.ListLoans)
	read.GET("/loans/:loan_ref", h.GetLoan) // loan_id or ticket number

	// 返却
	write.POST("/loans/:loan_ref/return", h.RegisterReturn)
}

// ---------- handlers ----------

func (h *Handler) CreateLoan(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	if req.LentBy == nil {
		if actor := auth.Actor(c); actor != "" {
			req.LentBy = &actor
		}
	}
	res, err := h.svc.CreateLoan(c.Request.Context(), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/loans/"+res.LoanID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetLoan(c *gin.Context) {
	// loan_ref は ID でも貸出番号でもよい
	res, err := h.svc.GetLoan(c.Request.Context(), c.Param("loan_ref"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListLoans(c *gin.Context) {
	f := LoanFilter{
		State:  State(strings.ToUpper(c.Query("state"))),
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
	}
	if v := c.Query("asset_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "asset_id must be a number"))
			return
		}
		f.AssetID = &id
	}
	if v := c.Query("borrower"); v != "" {
		f.Borrower = &v
	}
	items, total, err := h.svc.ListLoans(c.Request.Context(), f)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) RegisterReturn(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.RegisterReturn(c.Request.Context(), c.Param("loan_ref"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
