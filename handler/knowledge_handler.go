package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/service"
	"github.com/tieubaoca/knowledge-be/types"
)

type KnowledgeHandler struct {
	knowledge *service.KnowledgeService
	maxSize   int64
	logger    *zap.Logger
}

func NewKnowledgeHandler(knowledge *service.KnowledgeService, maxSize int64, logger *zap.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeHandler{
		knowledge: knowledge,
		maxSize:   maxSize,
		logger:    logger,
	}
}

func (h *KnowledgeHandler) HandleQuery(c *gin.Context) {
	var req types.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendBadRequest(c, "Invalid request body")
		return
	}

	var (
		res *types.AnswerResult
		err error
	)
	if req.TopK > 0 {
		res, err = h.knowledge.AnswerTopK(c.Request.Context(), req.Question, req.TopK)
	} else {
		res, err = h.knowledge.Answer(c.Request.Context(), req.Question)
	}
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, res)
}

// HandleStats always answers 200. Backend failures show up in the
// status field of the payload.
func (h *KnowledgeHandler) HandleStats(c *gin.Context) {
	sendSuccess(c, h.knowledge.Stats(c.Request.Context()))
}

func (h *KnowledgeHandler) HandleClear(c *gin.Context) {
	res, err := h.knowledge.ClearAllData(c.Request.Context())
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	h.logger.Warn("knowledge base cleared", zap.Int("deleted", res.DeletedCount))
	sendSuccess(c, res)
}

// HandleSummarize accepts either a json body with content or a multipart
// "file" field.
func (h *KnowledgeHandler) HandleSummarize(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		limitBody(c, h.maxSize)
		header, err := c.FormFile("file")
		if err != nil {
			sendFormError(c, err)
			return
		}
		file, err := h.readUpload(header)
		if err != nil {
			sendError(c, h.logger, err)
			return
		}
		res, err := h.knowledge.SummarizeFile(c.Request.Context(), file)
		if err != nil {
			sendError(c, h.logger, err)
			return
		}
		sendSuccess(c, res)
		return
	}

	var req types.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendBadRequest(c, "Invalid request body")
		return
	}
	res, err := h.knowledge.Summarize(c.Request.Context(), req.Content)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, res)
}

func (h *KnowledgeHandler) readUpload(header *multipart.FileHeader) (types.UploadedFile, error) {
	if h.maxSize > 0 && header.Size > h.maxSize {
		return types.UploadedFile{}, types.NewError("summarize", types.ErrInvalidInput, errors.New("file too large"))
	}
	src, err := header.Open()
	if err != nil {
		return types.UploadedFile{}, types.NewError("summarize", types.ErrInvalidInput, err)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return types.UploadedFile{}, types.NewError("summarize", types.ErrInvalidInput, err)
	}
	return types.UploadedFile{
		FileName: filepath.Base(header.Filename),
		FileType: header.Header.Get("Content-Type"),
		Content:  content,
	}, nil
}
