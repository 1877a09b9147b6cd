package api

import (
	"net/http"

	"videoverse/video-api/internal/chunkstore"
	"videoverse/video-api/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	videoService service.VideoService,
	transformService service.TransformService,
	chunks *chunkstore.ChunkStore,
) {
	videoHandler := NewVideoHandler(videoService, chunks)
	taskHandler := NewTaskHandler(transformService)
	shareHandler := NewShareHandler(videoService)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	videos := router.Group("/api/videos")
	{
		// Token-gated retrieval carries its own credential; everything else
		// requires a caller bearer token.
		videos.GET("/serve/", shareHandler.ServeVideo)

		protected := videos.Group("")
		protected.Use(authMiddleware)
		{
			protected.GET("/list/", videoHandler.ListVideos)
			protected.POST("/upload/", videoHandler.UploadVideo)
			protected.POST("/chunked_upload/", videoHandler.UploadChunk)

			protected.POST("/:id/trim/", taskHandler.TrimVideo)
			protected.POST("/merge/", taskHandler.MergeVideos)
			protected.GET("/tasks/:id/", taskHandler.TaskStatus)

			protected.POST("/:id/share/", shareHandler.ShareVideo)
		}
	}
}
