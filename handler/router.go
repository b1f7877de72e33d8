package handler

import (
	"github.com/gin-gonic/gin"
)

// NewRouter mounts the knowledge api under /api.
func NewRouter(
	cors *CorsHandler,
	upload *UploadHandler,
	knowledge *KnowledgeHandler,
	documents *DocumentHandler,
	maxUploadSize int64,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.CorsMiddleware)
	if maxUploadSize > 0 {
		// multipart parts beyond this spill to temp files
		router.MaxMultipartMemory = maxUploadSize
	}

	api := router.Group("/api")
	{
		api.POST("/upload", upload.UploadDocumentHandler)
		api.POST("/query", knowledge.HandleQuery)
		api.GET("/stats", knowledge.HandleStats)
		api.DELETE("/data", knowledge.HandleClear)
		api.POST("/summarize", knowledge.HandleSummarize)
		api.GET("/documents", documents.ServeDocument)
	}
	router.GET("/health", func(c *gin.Context) {
		sendSuccess(c, gin.H{"status": "ok"})
	})
	return router
}
