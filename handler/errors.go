package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/types"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 64 << 10

// limitBody caps the request body before the multipart form is parsed.
func limitBody(c *gin.Context, maxSize int64) {
	if maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)
	}
}

// sendFormError answers a failed multipart parse.
func sendFormError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, types.DataResponse{
			Status:  false,
			Message: "File too large",
		})
		return
	}
	sendBadRequest(c, "Invalid file")
}

// statusFor maps pipeline errors onto http status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrDuplicateFile):
		return http.StatusConflict
	case errors.Is(err, types.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrExtraction),
		errors.Is(err, types.ErrChunking),
		errors.Is(err, types.ErrNoValidDocuments):
		return http.StatusUnprocessableEntity
	case types.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sendError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, types.DataResponse{
		Status:  false,
		Message: err.Error(),
	})
}

func sendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, types.DataResponse{
		Status:  false,
		Message: message,
	})
}

func sendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data:   data,
	})
}
