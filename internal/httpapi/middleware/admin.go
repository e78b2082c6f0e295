package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/models"
	"gorm.io/gorm"
)

// AdminRequired runs after AuthRequired and lets through active admins only.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := UserID(c)
		if !ok {
			common.AbortFail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		var u models.User
		if err := db.WithContext(c.Request.Context()).First(&u, "id = ?", uid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				common.AbortFail(c, http.StatusUnauthorized, 40103, "user not found")
				return
			}
			common.AbortFail(c, http.StatusInternalServerError, 20001, "db error")
			return
		}
		if !u.IsActive || !u.IsAdmin {
			common.AbortFail(c, http.StatusForbidden, 40301, "admin access required")
			return
		}
		c.Next()
	}
}
