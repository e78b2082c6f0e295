package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/auth"
	"github.com/suPer8Hu/lexchat/internal/common"
	"github.com/suPer8Hu/lexchat/internal/models"
	"gorm.io/gorm"
)

type credentialsReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r *credentialsReq) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (h *Handler) tokenResponse(c *gin.Context, u *models.User) {
	token, err := auth.SignJWT(u.ID, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         u,
	})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.normalize()
	if _, err := mail.ParseAddress(req.Email); err != nil || len(req.Password) < 8 {
		common.Fail(c, http.StatusBadRequest, 10002, "valid email and a password of at least 8 characters required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{Email: req.Email, PasswordHash: hash, IsActive: true}
	ctx := c.Request.Context()
	var cnt int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", req.Email).Count(&cnt).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "email already registered")
		return
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "failed to create user (maybe email already exists)")
		return
	}
	h.Log.Info("user registered", "user_id", user.ID)
	h.tokenResponse(c, &user)
}

// Login accepts JSON or a form post with username/password fields.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	} else {
		req.Email = c.PostForm("username")
		req.Password = c.PostForm("password")
	}
	req.normalize()

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", req.Email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "incorrect email or password")
		return
	}
	if !user.IsActive {
		common.Fail(c, http.StatusForbidden, 40301, "inactive user")
		return
	}
	h.tokenResponse(c, &user)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, user)
}

// Logout is a no-op server side; tokens are stateless.
func (h *Handler) Logout(c *gin.Context) {
	common.OK(c, gin.H{"message": "successfully logged out"})
}
