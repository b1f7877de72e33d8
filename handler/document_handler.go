package handler

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tieubaoca/knowledge-be/service"
	"github.com/tieubaoca/knowledge-be/utils"
)

// DocumentHandler serves the archived copies kept by FileService.
type DocumentHandler struct {
	uploadDir string
}

func NewDocumentHandler(uploadDir string) *DocumentHandler {
	return &DocumentHandler{
		uploadDir: uploadDir,
	}
}

// ServeDocument streams the newest archived copy of ?file=<original name>.
func (h *DocumentHandler) ServeDocument(c *gin.Context) {
	requestedName := filepath.Base(c.Query("file"))
	if requestedName == "" || requestedName == "." || requestedName == string(filepath.Separator) {
		sendBadRequest(c, "File parameter is required")
		return
	}
	ext := strings.ToLower(filepath.Ext(requestedName))
	mt, ok := service.SupportedExtensions[ext]
	if !ok {
		sendBadRequest(c, "Unsupported file type")
		return
	}

	actualFile, err := h.findFileWithTimestamp(requestedName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": false, "message": "File not found"})
		return
	}

	c.Header("Content-Type", mt)
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": requestedName}))
	c.File(filepath.Join(h.uploadDir, actualFile))
}

// findFileWithTimestamp returns the archived name with the highest timestamp
// for requestedName.
func (h *DocumentHandler) findFileWithTimestamp(requestedName string) (string, error) {
	files, err := os.ReadDir(h.uploadDir)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(requestedName)
	baseName := strings.TrimSuffix(utils.SanitizeFileName(requestedName), ext)
	var (
		best   string
		bestTS int64 = -1
	)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		nameWithoutExt := strings.TrimSuffix(name, ext)
		lastUnderscoreIdx := strings.LastIndex(nameWithoutExt, "_")
		if lastUnderscoreIdx == -1 || nameWithoutExt[:lastUnderscoreIdx] != baseName {
			continue
		}
		ts, err := strconv.ParseInt(nameWithoutExt[lastUnderscoreIdx+1:], 10, 64)
		if err != nil {
			continue
		}
		if ts > bestTS {
			best, bestTS = name, ts
		}
	}
	if best == "" {
		return "", fmt.Errorf("file not found: %s", requestedName)
	}
	return best, nil
}
