package api

import (
	"context"
	"net/http"

	"cloudipam/internal/domain/ipam"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// CreateVRF godoc
//
//	@Summary		Create a VRF
//	@Description	Create a new routing domain
//	@Tags			vrfs
//	@Accept			json
//	@Produce		json
//	@Param			vrf	body		ipam.VRFCreateRequest	true	"VRF creation request"
//	@Success		201	{object}	ipam.VRF
//	@Failure		400	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/vrfs [post]
func (h *Handler) CreateVRF(c *gin.Context) {
	var req ipam.VRFCreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/vrfs", func(ctx context.Context) (any, int, error) {
		vrf, err := h.prefixes.CreateVRF(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return vrf, http.StatusCreated, nil
	})
}

// ListVRFs godoc
//
//	@Summary		List VRFs
//	@Tags			vrfs
//	@Produce		json
//	@Success		200	{array}		ipam.VRF
//	@Failure		500	{object}	map[string]string
//	@Router			/vrfs [get]
func (h *Handler) ListVRFs(c *gin.Context) {
	vrfs, err := h.prefixes.ListVRFs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vrfs)
}

// GetVRF godoc
//
//	@Summary		Get a VRF
//	@Tags			vrfs
//	@Produce		json
//	@Param			vrfId	path		string	true	"VRF ID"
//	@Success		200		{object}	ipam.VRF
//	@Failure		404		{object}	map[string]string
//	@Router			/vrfs/{vrfId} [get]
func (h *Handler) GetVRF(c *gin.Context) {
	vrf, err := h.prefixes.GetVRF(c.Request.Context(), c.Param("vrfId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vrf)
}

// UpdateVRF godoc
//
//	@Summary		Update a VRF
//	@Tags			vrfs
//	@Accept			json
//	@Produce		json
//	@Param			vrfId	path		string					true	"VRF ID"
//	@Param			vrf		body		ipam.VRFUpdateRequest	true	"VRF update request"
//	@Success		200		{object}	ipam.VRF
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/vrfs/{vrfId} [put]
func (h *Handler) UpdateVRF(c *gin.Context) {
	var req ipam.VRFUpdateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vrfID := c.Param("vrfId")

	h.withIdempotency(c, req.RequestID, "/vrfs/"+vrfID, func(ctx context.Context) (any, int, error) {
		vrf, err := h.prefixes.UpdateVRF(ctx, vrfID, &req)
		if err != nil {
			return nil, 0, err
		}
		return vrf, http.StatusOK, nil
	})
}

// DeleteVRF godoc
//
//	@Summary		Delete a VRF
//	@Description	Delete an empty, non-reserved VRF
//	@Tags			vrfs
//	@Produce		json
//	@Param			vrfId	path	string	true	"VRF ID"
//	@Success		204
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/vrfs/{vrfId} [delete]
func (h *Handler) DeleteVRF(c *gin.Context) {
	vrfID := c.Param("vrfId")
	h.withIdempotency(c, "", "/vrfs/"+vrfID, func(ctx context.Context) (any, int, error) {
		if err := h.prefixes.DeleteVRF(ctx, vrfID); err != nil {
			return nil, 0, err
		}
		return nil, http.StatusNoContent, nil
	})
}
