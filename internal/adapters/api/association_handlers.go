package api

import (
	"context"
	"net/http"

	"cloudipam/internal/domain/ipam"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// CreateAssociation godoc
//
//	@Summary		Associate a VPC with a prefix
//	@Description	Anchor a VPC's address space under a manual parent prefix
//	@Tags			associations
//	@Accept			json
//	@Produce		json
//	@Param			association	body		ipam.AssociationCreateRequest	true	"Association request"
//	@Success		201			{object}	ipam.VPCPrefixAssociation
//	@Failure		400			{object}	map[string]string
//	@Failure		409			{object}	map[string]string
//	@Router			/vpc-associations [post]
func (h *Handler) CreateAssociation(c *gin.Context) {
	var req ipam.AssociationCreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/vpc-associations", func(ctx context.Context) (any, int, error) {
		assoc, err := h.prefixes.CreateAssociation(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return assoc, http.StatusCreated, nil
	})
}

// DeleteAssociation godoc
//
//	@Summary		Delete a VPC-prefix association
//	@Tags			associations
//	@Produce		json
//	@Param			associationId	path	string	true	"Association ID"
//	@Success		204
//	@Failure		404	{object}	map[string]string
//	@Router			/vpc-associations/{associationId} [delete]
func (h *Handler) DeleteAssociation(c *gin.Context) {
	associationID := c.Param("associationId")
	h.withIdempotency(c, "", "/vpc-associations/"+associationID, func(ctx context.Context) (any, int, error) {
		if err := h.prefixes.DeleteAssociation(ctx, associationID); err != nil {
			return nil, 0, err
		}
		return nil, http.StatusNoContent, nil
	})
}

// IdempotencyStats godoc
//
//	@Summary		Idempotency cache statistics
//	@Tags			idempotency
//	@Produce		json
//	@Success		200	{object}	idempotency.Stats
//	@Failure		500	{object}	map[string]string
//	@Router			/idempotency/stats [get]
func (h *Handler) IdempotencyStats(c *gin.Context) {
	stats, err := h.idempotency.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
