package api

import (
	"context"
	"net/http"

	"cloudipam/internal/domain/ipam"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// CreateVPC godoc
//
//	@Summary		Register a VPC
//	@Description	Register a cloud VPC for subnet reconciliation
//	@Tags			vpcs
//	@Accept			json
//	@Produce		json
//	@Param			vpc	body		ipam.VPCCreateRequest	true	"VPC registration request"
//	@Success		201	{object}	ipam.VPC
//	@Failure		400	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/vpcs [post]
func (h *Handler) CreateVPC(c *gin.Context) {
	var req ipam.VPCCreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/vpcs", func(ctx context.Context) (any, int, error) {
		vpc, err := h.prefixes.CreateVPC(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return vpc, http.StatusCreated, nil
	})
}

// ListVPCs godoc
//
//	@Summary		List VPCs
//	@Tags			vpcs
//	@Produce		json
//	@Success		200	{array}		ipam.VPC
//	@Failure		500	{object}	map[string]string
//	@Router			/vpcs [get]
func (h *Handler) ListVPCs(c *gin.Context) {
	vpcs, err := h.prefixes.ListVPCs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vpcs)
}

// GetVPC godoc
//
//	@Summary		Get a VPC
//	@Tags			vpcs
//	@Produce		json
//	@Param			vpcId	path		string	true	"VPC ID"
//	@Success		200		{object}	ipam.VPC
//	@Failure		404		{object}	map[string]string
//	@Router			/vpcs/{vpcId} [get]
func (h *Handler) GetVPC(c *gin.Context) {
	vpc, err := h.prefixes.GetVPC(c.Request.Context(), c.Param("vpcId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vpc)
}

// UpdateVPC godoc
//
//	@Summary		Update a VPC
//	@Tags			vpcs
//	@Accept			json
//	@Produce		json
//	@Param			vpcId	path		string					true	"VPC ID"
//	@Param			vpc		body		ipam.VPCUpdateRequest	true	"VPC update request"
//	@Success		200		{object}	ipam.VPC
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/vpcs/{vpcId} [put]
func (h *Handler) UpdateVPC(c *gin.Context) {
	var req ipam.VPCUpdateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vpcID := c.Param("vpcId")

	h.withIdempotency(c, req.RequestID, "/vpcs/"+vpcID, func(ctx context.Context) (any, int, error) {
		vpc, err := h.prefixes.UpdateVPC(ctx, vpcID, &req)
		if err != nil {
			return nil, 0, err
		}
		return vpc, http.StatusOK, nil
	})
}

// DeleteVPC godoc
//
//	@Summary		Delete a VPC
//	@Description	Delete a VPC that no prefix or association references
//	@Tags			vpcs
//	@Produce		json
//	@Param			vpcId	path	string	true	"VPC ID"
//	@Success		204
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/vpcs/{vpcId} [delete]
func (h *Handler) DeleteVPC(c *gin.Context) {
	vpcID := c.Param("vpcId")
	h.withIdempotency(c, "", "/vpcs/"+vpcID, func(ctx context.Context) (any, int, error) {
		if err := h.prefixes.DeleteVPC(ctx, vpcID); err != nil {
			return nil, 0, err
		}
		return nil, http.StatusNoContent, nil
	})
}

// ListVPCAssociations godoc
//
//	@Summary		List a VPC's prefix associations
//	@Tags			vpcs
//	@Produce		json
//	@Param			vpcId	path		string	true	"VPC ID"
//	@Success		200		{array}		ipam.VPCPrefixAssociation
//	@Failure		404		{object}	map[string]string
//	@Router			/vpcs/{vpcId}/associations [get]
func (h *Handler) ListVPCAssociations(c *gin.Context) {
	assocs, err := h.prefixes.ListAssociationsByVPC(c.Request.Context(), c.Param("vpcId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assocs)
}
