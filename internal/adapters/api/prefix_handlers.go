package api

import (
	"context"
	"net/http"
	"strconv"

	"cloudipam/internal/domain/ipam"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// CreatePrefix godoc
//
//	@Summary		Create a prefix
//	@Description	Create a manually managed prefix in a VRF
//	@Tags			prefixes
//	@Accept			json
//	@Produce		json
//	@Param			prefix	body		ipam.PrefixCreateRequest	true	"Prefix creation request"
//	@Success		201		{object}	ipam.Prefix
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Router			/prefixes [post]
func (h *Handler) CreatePrefix(c *gin.Context) {
	var req ipam.PrefixCreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/prefixes", func(ctx context.Context) (any, int, error) {
		p, err := h.prefixes.CreatePrefix(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return p, http.StatusCreated, nil
	})
}

// ListPrefixes godoc
//
//	@Summary		List prefixes
//	@Description	List prefixes, optionally filtered by VRF, routability, source or provider
//	@Tags			prefixes
//	@Produce		json
//	@Param			vrf_id				query	string	false	"VRF ID"
//	@Param			routable			query	bool	false	"Routability"
//	@Param			source				query	string	false	"Source (manual or vpc)"
//	@Param			provider			query	string	false	"Cloud provider"
//	@Param			provider_account_id	query	string	false	"Provider account ID"
//	@Success		200	{array}		ipam.Prefix
//	@Failure		400	{object}	map[string]string
//	@Router			/prefixes [get]
func (h *Handler) ListPrefixes(c *gin.Context) {
	filter := ipam.PrefixFilter{
		VRFID:             c.Query("vrf_id"),
		Source:            ipam.Source(c.Query("source")),
		Provider:          ipam.Provider(c.Query("provider")),
		ProviderAccountID: c.Query("provider_account_id"),
	}
	if v := c.Query("routable"); v != "" {
		routable, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "routable must be a boolean"})
			return
		}
		filter.Routable = &routable
	}

	prefixes, err := h.prefixes.ListPrefixes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefixes)
}

// GetTree godoc
//
//	@Summary		Get the prefix tree
//	@Description	Prefixes in depth-first order with indentation levels, optionally for one VRF
//	@Tags			prefixes
//	@Produce		json
//	@Param			vrf_id	query		string	false	"VRF ID"
//	@Success		200		{array}		ipam.Prefix
//	@Failure		404		{object}	map[string]string
//	@Router			/prefixes/tree [get]
func (h *Handler) GetTree(c *gin.Context) {
	tree, err := h.prefixes.Tree(c.Request.Context(), c.Query("vrf_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// GetPrefix godoc
//
//	@Summary		Get a prefix
//	@Description	Get a prefix by ID
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Success		200			{object}	ipam.Prefix
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId} [get]
func (h *Handler) GetPrefix(c *gin.Context) {
	p, err := h.prefixes.GetPrefix(c.Request.Context(), c.Param("prefixId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePrefix godoc
//
//	@Summary		Update a prefix
//	@Description	Update tags, routability or child policy of a manual prefix
//	@Tags			prefixes
//	@Accept			json
//	@Produce		json
//	@Param			prefixId	path		string					true	"Prefix ID"
//	@Param			prefix		body		ipam.PrefixUpdateRequest	true	"Prefix update request"
//	@Success		200			{object}	ipam.Prefix
//	@Failure		400			{object}	map[string]string
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId} [put]
func (h *Handler) UpdatePrefix(c *gin.Context) {
	var req ipam.PrefixUpdateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefixID := c.Param("prefixId")

	h.withIdempotency(c, req.RequestID, "/prefixes/"+prefixID, func(ctx context.Context) (any, int, error) {
		p, err := h.prefixes.UpdatePrefix(ctx, prefixID, &req)
		if err != nil {
			return nil, 0, err
		}
		return p, http.StatusOK, nil
	})
}

// DeletePrefix godoc
//
//	@Summary		Delete a prefix
//	@Description	Delete a leaf prefix without children or associations
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path	string	true	"Prefix ID"
//	@Success		204
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/prefixes/{prefixId} [delete]
func (h *Handler) DeletePrefix(c *gin.Context) {
	prefixID := c.Param("prefixId")
	h.withIdempotency(c, "", "/prefixes/"+prefixID, func(ctx context.Context) (any, int, error) {
		if err := h.prefixes.DeletePrefix(ctx, prefixID); err != nil {
			return nil, 0, err
		}
		return nil, http.StatusNoContent, nil
	})
}

// ListChildren godoc
//
//	@Summary		List child prefixes
//	@Description	Direct children of a prefix in address order
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Success		200			{array}		ipam.Prefix
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId}/children [get]
func (h *Handler) ListChildren(c *gin.Context) {
	children, err := h.prefixes.ListChildren(c.Request.Context(), c.Param("prefixId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

// CanCreateChild godoc
//
//	@Summary		Probe child creation
//	@Description	Whether a manual child prefix may be created under this prefix
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Success		200			{object}	ipam.Capability
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId}/can-create-child [get]
func (h *Handler) CanCreateChild(c *gin.Context) {
	capability, err := h.prefixes.CanCreateChild(c.Request.Context(), c.Param("prefixId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capability)
}

// CanAssociateVPC godoc
//
//	@Summary		Probe VPC association
//	@Description	Whether this prefix may take a (further) VPC association
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Success		200			{object}	ipam.Capability
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId}/can-associate-vpc [get]
func (h *Handler) CanAssociateVPC(c *gin.Context) {
	capability, err := h.prefixes.CanAssociateVPC(c.Request.Context(), c.Param("prefixId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capability)
}

// ListPrefixAssociations godoc
//
//	@Summary		List a prefix's VPC associations
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Success		200			{array}		ipam.VPCPrefixAssociation
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId}/vpc-associations [get]
func (h *Handler) ListPrefixAssociations(c *gin.Context) {
	assocs, err := h.prefixes.ListAssociationsByPrefix(c.Request.Context(), c.Param("prefixId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assocs)
}

// AvailableSubnets godoc
//
//	@Summary		Preview free subnets
//	@Description	Free subnets of the given mask length under a prefix, without allocating
//	@Tags			prefixes
//	@Produce		json
//	@Param			prefixId	path		string	true	"Prefix ID"
//	@Param			mask_length	query		int		true	"Subnet mask length"
//	@Param			limit		query		int		false	"Maximum results"	default(16)
//	@Success		200			{object}	map[string]any
//	@Failure		400			{object}	map[string]string
//	@Failure		404			{object}	map[string]string
//	@Router			/prefixes/{prefixId}/available-subnets [get]
func (h *Handler) AvailableSubnets(c *gin.Context) {
	maskLength, err := strconv.Atoi(c.Query("mask_length"))
	if err != nil || maskLength <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mask_length must be a positive integer"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "16"))

	subnets, err := h.allocator.PreviewAvailableSubnets(c.Request.Context(), c.Param("prefixId"), maskLength, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prefix_id":         c.Param("prefixId"),
		"mask_length":       maskLength,
		"available_subnets": subnets,
	})
}

// AllocateSubnet godoc
//
//	@Summary		Allocate a subnet
//	@Description	First-fit allocation of a subnet under a tag-matched or explicit parent
//	@Tags			prefixes
//	@Accept			json
//	@Produce		json
//	@Param			allocation	body		ipam.AllocationRequest	true	"Allocation request"
//	@Success		201			{object}	ipam.Allocation
//	@Failure		400			{object}	map[string]string
//	@Failure		409			{object}	map[string]string
//	@Router			/prefixes/allocate [post]
func (h *Handler) AllocateSubnet(c *gin.Context) {
	var req ipam.AllocationRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/prefixes/allocate", func(ctx context.Context) (any, int, error) {
		alloc, err := h.allocator.AllocateSubnet(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return alloc, http.StatusCreated, nil
	})
}

// CreatePublicIP godoc
//
//	@Summary		Record a public IP
//	@Description	Create a public IP prefix in the reserved public VRF
//	@Tags			prefixes
//	@Accept			json
//	@Produce		json
//	@Param			public_ip	body		ipam.PublicIPCreateRequest	true	"Public IP request"
//	@Success		201			{object}	ipam.Prefix
//	@Failure		400			{object}	map[string]string
//	@Failure		409			{object}	map[string]string
//	@Router			/public-ips [post]
func (h *Handler) CreatePublicIP(c *gin.Context) {
	var req ipam.PublicIPCreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.withIdempotency(c, req.RequestID, "/public-ips", func(ctx context.Context) (any, int, error) {
		p, err := h.prefixes.CreatePublicIP(ctx, &req)
		if err != nil {
			return nil, 0, err
		}
		return p, http.StatusCreated, nil
	})
}
