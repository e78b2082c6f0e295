package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/common"
	"gorm.io/gorm"
)

// UploadAttachment stores a file and returns a ref the client passes with
// its next chat message. The form field file_type names the kind
// (document, image or audio); when absent it is detected from the MIME type.
func (h *Handler) UploadAttachment(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "file is required")
		return
	}
	mime := fh.Header.Get("Content-Type")

	kind := attachment.Kind(strings.ToLower(strings.TrimSpace(c.PostForm("file_type"))))
	if kind == "" {
		detected, ok := attachment.DetectKind(mime, fh.Filename)
		if !ok {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid file type or size")
			return
		}
		kind = detected
	}
	if err := attachment.Validate(kind, mime, fh.Filename, fh.Size); err != nil {
		h.Log.Warn("attachment rejected", "file_name", fh.Filename, "mime", mime, "size", fh.Size, "err", err)
		common.Fail(c, http.StatusBadRequest, 10005, "invalid file type or size")
		return
	}

	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "unreadable upload")
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	locator, err := h.Storage.Save(ctx, kind, fh.Filename, mime, f)
	if err != nil {
		h.Log.Error("store attachment failed", "file_name", fh.Filename, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to store file")
		return
	}

	a := &attachment.Attachment{FileName: fh.Filename, FileType: mime, FileSize: fh.Size, FilePath: locator}
	if uid, ok := userIDFromContext(c); ok {
		a.OwnerID = &uid
	}
	if err := h.Attachments.Create(ctx, a); err != nil {
		_ = h.Storage.Delete(ctx, locator)
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, attachment.Ref{ID: a.ID, FileName: a.FileName, FileType: a.FileType, FileSize: a.FileSize})
}

func (h *Handler) ServeAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	a, err := h.Attachments.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "attachment not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	uid, _ := userIDFromContext(c)
	if !a.AccessibleBy(uid) {
		common.Fail(c, http.StatusNotFound, 40402, "attachment not found")
		return
	}

	rc, err := h.Storage.Open(ctx, a.FilePath)
	if err != nil {
		h.Log.Warn("attachment file missing", "attachment_id", a.ID, "err", err)
		common.Fail(c, http.StatusNotFound, 40403, "file not found")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.FileName))
	c.DataFromReader(http.StatusOK, a.FileSize, a.FileType, rc, nil)
}
