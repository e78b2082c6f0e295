package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/usage"
)

func (h *Handler) RecentUsage(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	recs, err := h.Usage.ListRecent(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if recs == nil {
		recs = []usage.Record{}
	}
	common.OK(c, recs)
}

// TotalUsage sums tokens, optionally over the last ?days=N days.
func (h *Handler) TotalUsage(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var since time.Time
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			common.Fail(c, http.StatusBadRequest, 10006, "days must be a positive integer")
			return
		}
		since = time.Now().AddDate(0, 0, -days)
	}
	total, err := h.Usage.Total(c.Request.Context(), uid, since)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"user_id": uid, "tokens_used": total})
}
