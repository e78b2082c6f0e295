package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/usage"
)

const dashboardRecentLimit = 10

func (h *Handler) MonthlyAverageUsage(c *gin.Context) {
	out, err := h.Usage.MonthlyAverage(c.Request.Context())
	if err != nil {
		h.Log.Error("monthly average usage failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, out)
}

// UserMonthlyUsage reports the admin's own months unless ?user_id names
// another user.
func (h *Handler) UserMonthlyUsage(c *gin.Context) {
	target, ok := dashboardTarget(c)
	if !ok {
		return
	}
	out, err := h.Usage.UserMonthly(c.Request.Context(), target)
	if err != nil {
		h.Log.Error("user monthly usage failed", "user_id", target, "err", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, out)
}

func (h *Handler) RecentTokenUsage(c *gin.Context) {
	target, ok := dashboardTarget(c)
	if !ok {
		return
	}
	recs, err := h.Usage.ListRecent(c.Request.Context(), target, dashboardRecentLimit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if recs == nil {
		recs = []usage.Record{}
	}
	common.OK(c, recs)
}

func dashboardTarget(c *gin.Context) (string, bool) {
	if v := c.Query("user_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			common.Fail(c, http.StatusBadRequest, 10007, "user_id must be a uuid")
			return "", false
		}
		return v, true
	}
	return requireUser(c)
}
