package weekview

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ASSET-ledger/internal/maintenance/schedules"
	"ASSET-ledger/internal/platform/apierr"
)

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	r.GET("/maintenance/week-view/:year/:month/:week", func(c *gin.Context) {
		year, month, week, ok := schedules.WeekParams(c)
		if !ok {
			return
		}
		v, err := svc.Week(c.Request.Context(), year, month, week)
		if err != nil {
			c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
			return
		}
		c.JSON(http.StatusOK, v)
	})
}
