package api

import (
	"context"
	"net/http"

	"cloudipam/internal/adapters/api/middleware"
	"cloudipam/internal/application/allocator"
	"cloudipam/internal/application/idempotency"
	"cloudipam/internal/application/prefix"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	swaggerFiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	_ "cloudipam/docs" // swagger docs
)

// Handler handles HTTP requests for the IPAM API
type Handler struct {
	prefixes    *prefix.Service
	allocator   *allocator.Service
	idempotency *idempotency.Service
}

// NewHandler creates a new API handler
func NewHandler(prefixes *prefix.Service, alloc *allocator.Service, idem *idempotency.Service) *Handler {
	return &Handler{
		prefixes:    prefixes,
		allocator:   alloc,
		idempotency: idem,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		prefixes := api.Group("/prefixes")
		{
			prefixes.POST("", h.CreatePrefix)
			prefixes.GET("", h.ListPrefixes)
			prefixes.GET("/tree", h.GetTree)
			prefixes.POST("/allocate", h.AllocateSubnet)
			prefixes.GET("/:prefixId", h.GetPrefix)
			prefixes.PUT("/:prefixId", h.UpdatePrefix)
			prefixes.DELETE("/:prefixId", h.DeletePrefix)
			prefixes.GET("/:prefixId/children", h.ListChildren)
			prefixes.GET("/:prefixId/can-create-child", h.CanCreateChild)
			prefixes.GET("/:prefixId/can-associate-vpc", h.CanAssociateVPC)
			prefixes.GET("/:prefixId/vpc-associations", h.ListPrefixAssociations)
			prefixes.GET("/:prefixId/available-subnets", h.AvailableSubnets)
		}

		api.POST("/public-ips", h.CreatePublicIP)

		vrfs := api.Group("/vrfs")
		{
			vrfs.POST("", h.CreateVRF)
			vrfs.GET("", h.ListVRFs)
			vrfs.GET("/:vrfId", h.GetVRF)
			vrfs.PUT("/:vrfId", h.UpdateVRF)
			vrfs.DELETE("/:vrfId", h.DeleteVRF)
		}

		vpcs := api.Group("/vpcs")
		{
			vpcs.POST("", h.CreateVPC)
			vpcs.GET("", h.ListVPCs)
			vpcs.GET("/:vpcId", h.GetVPC)
			vpcs.PUT("/:vpcId", h.UpdateVPC)
			vpcs.DELETE("/:vpcId", h.DeleteVPC)
			vpcs.GET("/:vpcId/associations", h.ListVPCAssociations)
		}

		api.POST("/vpc-associations", h.CreateAssociation)
		api.DELETE("/vpc-associations/:associationId", h.DeleteAssociation)

		api.GET("/idempotency/stats", h.IdempotencyStats)
		api.GET("/health", h.Health)
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Health godoc
//
//	@Summary		Health check
//	@Description	Liveness probe
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// withIdempotency runs fn under the idempotency layer and writes the
// (possibly replayed) response. The raw body doubles as the parameter set
// that gets hashed. A request without a request_id of its own is stored
// under the id the request-id middleware assigned, so retries that repeat
// that header still replay.
func (h *Handler) withIdempotency(c *gin.Context, requestID, endpoint string, fn func(ctx context.Context) (any, int, error)) {
	var params map[string]any
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindBodyWith(&params, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if requestID == "" {
		requestID = c.GetString(middleware.ContextKey)
	}
	result, err := h.idempotency.Execute(c.Request.Context(), requestID, endpoint, c.Request.Method, params, fn)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Replayed {
		c.Header("X-Idempotency-Replayed", "true")
	}
	if result.Status == http.StatusNoContent {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(result.Status, "application/json", result.Response)
}
