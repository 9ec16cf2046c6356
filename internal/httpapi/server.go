// Package httpapi exposes the portal over HTTP with gin.
package httpapi

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campus-portal/internal/apperr"
	"campus-portal/internal/auth"
	"campus-portal/internal/identity"
	"campus-portal/internal/notify"
	"campus-portal/internal/workflow"
)

// Server holds the collaborators the handlers call into.
type Server struct {
	Engine    *workflow.Engine
	Identity  *identity.Service
	Sessions  *auth.Sessions
	Hub       *notify.Hub
	UploadDir string
}

// -----------------------------
// Helper functions
// -----------------------------

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// fail maps a workflow error onto a response. Authorization failures of
// anonymous callers become 401 so clients know to log in.
func fail(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		jsonError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	status := e.Kind.HTTPStatus()
	if e.Kind == apperr.KindAuthorization && auth.Principal(c).Anonymous() {
		status = http.StatusUnauthorized
	}
	body := gin.H{"error": e.Message}
	if e.Redirect != "" {
		body["redirect"] = e.Redirect
	}
	c.JSON(status, body)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		jsonError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// formAsset opens the optional image_file upload. The returned closer is
// never nil.
func formAsset(c *gin.Context) (*workflow.Asset, func(), error) {
	noop := func() {}
	fh, err := c.FormFile("image_file")
	if err != nil {
		// Not multipart, or no file part.
		return nil, noop, nil
	}
	return openAsset(fh)
}

func openAsset(fh *multipart.FileHeader) (*workflow.Asset, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &workflow.Asset{Filename: fh.Filename, Content: f}, func() { f.Close() }, nil
}
