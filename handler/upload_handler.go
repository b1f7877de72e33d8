package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/service"
)

type UploadHandler struct {
	fileService *service.FileService
	logger      *zap.Logger
}

func NewUploadHandler(fileService *service.FileService, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{
		fileService: fileService,
		logger:      logger,
	}
}

// UploadDocumentHandler ingests the multipart field "file".
func (h *UploadHandler) UploadDocumentHandler(c *gin.Context) {
	limitBody(c, h.fileService.MaxSize())
	header, err := c.FormFile("file")
	if err != nil {
		sendFormError(c, err)
		return
	}

	resp, err := h.fileService.UploadFile(c.Request.Context(), header)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	h.logger.Info("document uploaded", zap.String("file", resp.OriginalName), zap.Int("chunks", resp.ChunkCount))
	sendSuccess(c, resp)
}
