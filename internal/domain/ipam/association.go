package ipam

import "net/netip"

// VPCPrefixAssociation links a VPC to the manual parent prefix under which
// that VPC's subnets live. Policy: a routable parent admits at most one
// association, a non-routable parent admits many, and source=vpc prefixes
// admit none.
type VPCPrefixAssociation struct {
	ID             string       `json:"association_id"`
	VPCID          string       `json:"vpc_id"`
	VPCPrefixCIDR  netip.Prefix `json:"vpc_prefix_cidr"`
	Routable       bool         `json:"routable"`
	ParentPrefixID string       `json:"parent_prefix_id"`
}

// AssociationCreateRequest carries the data needed to associate a VPC with a
// parent prefix. The parent may be named directly, or located by CIDR within
// vrf_id (falling back to the configured default VRF when vrf_id is empty).
type AssociationCreateRequest struct {
	VPCID          string `json:"vpc_id" binding:"required"`
	VPCPrefixCIDR  string `json:"vpc_prefix_cidr" binding:"required"`
	Routable       *bool  `json:"routable,omitempty"`
	ParentPrefixID string `json:"parent_prefix_id,omitempty"`
	VRFID          string `json:"vrf_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}
