package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/mintgate/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
// limiter may be nil to disable rate limiting.
func SetupRouter(deps *handler.Dependencies, limiter *RateLimiter) *gin.Engine {
	r := gin.New()

	// two files plus form fields
	var submitLimit int64
	if deps.MaxUploadBytes > 0 {
		submitLimit = 2*deps.MaxUploadBytes + 1<<20
		r.MaxMultipartMemory = submitLimit
	}

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mint-service",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Certificates != nil {
		// GET /certificates/:certificate_id - Share page for a certificate image
		r.GET("/certificates/:certificate_id", handler.NewCertificateHandler(deps.Certificates).GetCertificate)
	}

	mintHandler := handler.NewMintHandler(deps)

	v1 := r.Group("/api/v1")
	{
		mints := v1.Group("/mints")
		{
			var submit []gin.HandlerFunc
			if limiter != nil {
				submit = append(submit, RateLimitMiddleware(limiter))
			}
			if submitLimit > 0 {
				submit = append(submit, BodyLimitMiddleware(submitLimit))
			}
			submit = append(submit, mintHandler.SubmitMint)

			// POST /api/v1/mints - Queue a paid mint
			mints.POST("", submit...)

			// GET /api/v1/mints/:payment_reference/status - Poll job status
			mints.GET("/:payment_reference/status", mintHandler.GetStatus)

			if deps.Journal != nil {
				// GET /api/v1/mints - List finished mints
				mints.GET("", mintHandler.ListMints)

				// GET /api/v1/mints/:payment_reference - Finished mint record
				mints.GET("/:payment_reference", mintHandler.GetMint)
			}
		}
	}

	return r
}
