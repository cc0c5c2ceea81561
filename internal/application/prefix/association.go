package prefix

import (
	"context"
	"fmt"
	"net/netip"

	"cloudipam/internal/domain/ipam"

	"github.com/google/uuid"
)

// CreateAssociation links a VPC to a manual parent prefix. The association
// CIDR is the slice of the parent the VPC occupies; the reconciler uses it to
// place discovered subnets. A routable parent admits a single association.
func (s *Service) CreateAssociation(ctx context.Context, req *ipam.AssociationCreateRequest) (*ipam.VPCPrefixAssociation, error) {
	cidr, err := ipam.ParseCIDR(req.VPCPrefixCIDR)
	if err != nil {
		return nil, err
	}
	vpc, err := s.repo.GetVPC(ctx, req.VPCID)
	if err != nil {
		return nil, err
	}
	parent, err := s.resolveAssociationParent(ctx, req, cidr)
	if err != nil {
		return nil, err
	}

	capability, err := s.canAssociate(ctx, parent)
	if err != nil {
		return nil, err
	}
	if !capability.Allowed {
		return nil, fmt.Errorf("%w: %s", ipam.ErrAssociationPolicy, capability.Reason)
	}

	if !ipam.SameFamily(parent.CIDR, cidr) {
		return nil, ipam.ErrFamilyMismatch
	}
	if cidr.Bits() < parent.CIDR.Bits() || !parent.CIDR.Contains(cidr.Addr()) {
		return nil, fmt.Errorf("%w: %s outside %s", ipam.ErrParentMismatch, cidr, parent.CIDR)
	}

	routable := parent.Routable
	if req.Routable != nil {
		routable = *req.Routable
	}

	assoc := &ipam.VPCPrefixAssociation{
		ID:             uuid.New().String(),
		VPCID:          vpc.ID,
		VPCPrefixCIDR:  cidr,
		Routable:       routable,
		ParentPrefixID: parent.ID,
	}
	if err := s.repo.CreateAssociation(ctx, assoc); err != nil {
		return nil, err
	}

	parent.Tags[ipam.TagAssociatedVPC] = vpc.ProviderVPCID
	if err := s.repo.UpdatePrefix(ctx, parent); err != nil {
		return nil, fmt.Errorf("failed to tag parent prefix: %w", err)
	}
	return assoc, nil
}

// resolveAssociationParent locates the parent prefix an association anchors
// on: by id when given, otherwise by exact CIDR within the request's VRF, the
// configured default VRF, or the VRF marked default, in that order.
func (s *Service) resolveAssociationParent(ctx context.Context, req *ipam.AssociationCreateRequest, cidr netip.Prefix) (*ipam.Prefix, error) {
	if req.ParentPrefixID != "" {
		return s.repo.GetPrefix(ctx, req.ParentPrefixID)
	}
	vrfID := req.VRFID
	if vrfID == "" {
		vrfID = s.defaultVRFID
	}
	if vrfID == "" {
		def, err := s.DefaultVRF(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: association carries neither parent_prefix_id nor vrf_id and no default VRF is configured", ipam.ErrVRFNotFound)
		}
		vrfID = def.ID
	}
	return s.repo.GetPrefixByCIDR(ctx, vrfID, cidr)
}

// DeleteAssociation removes an association and clears the parent's
// associated_vpc tag once no association remains.
func (s *Service) DeleteAssociation(ctx context.Context, associationID string) error {
	assoc, err := s.repo.GetAssociation(ctx, associationID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAssociation(ctx, associationID); err != nil {
		return err
	}

	remaining, err := s.repo.ListAssociationsByPrefix(ctx, assoc.ParentPrefixID)
	if err != nil {
		return fmt.Errorf("failed to list associations: %w", err)
	}
	if len(remaining) > 0 {
		return nil
	}
	parent, err := s.repo.GetPrefix(ctx, assoc.ParentPrefixID)
	if err != nil {
		// parent may have been deleted concurrently
		return nil
	}
	if _, ok := parent.Tags[ipam.TagAssociatedVPC]; ok {
		delete(parent.Tags, ipam.TagAssociatedVPC)
		if err := s.repo.UpdatePrefix(ctx, parent); err != nil {
			return fmt.Errorf("failed to untag parent prefix: %w", err)
		}
	}
	return nil
}

// ListAssociationsByVPC retrieves the associations of a VPC.
func (s *Service) ListAssociationsByVPC(ctx context.Context, vpcID string) ([]*ipam.VPCPrefixAssociation, error) {
	if _, err := s.repo.GetVPC(ctx, vpcID); err != nil {
		return nil, err
	}
	return s.repo.ListAssociationsByVPC(ctx, vpcID)
}

// ListAssociationsByPrefix retrieves the associations anchored on a prefix.
func (s *Service) ListAssociationsByPrefix(ctx context.Context, prefixID string) ([]*ipam.VPCPrefixAssociation, error) {
	if _, err := s.repo.GetPrefix(ctx, prefixID); err != nil {
		return nil, err
	}
	return s.repo.ListAssociationsByPrefix(ctx, prefixID)
}

// CanAssociateVPC answers whether the given prefix may take a (further) VPC
// association.
func (s *Service) CanAssociateVPC(ctx context.Context, prefixID string) (*ipam.Capability, error) {
	p, err := s.repo.GetPrefix(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	return s.canAssociate(ctx, p)
}

func (s *Service) canAssociate(ctx context.Context, p *ipam.Prefix) (*ipam.Capability, error) {
	if p.Source == ipam.SourceVPC {
		return &ipam.Capability{Allowed: false, Reason: "VPC-sourced prefixes cannot take associations"}, nil
	}
	existing, err := s.repo.ListAssociationsByPrefix(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	if p.Routable && len(existing) > 0 {
		return &ipam.Capability{Allowed: false, Reason: "routable prefix already has a VPC association"}, nil
	}
	return &ipam.Capability{Allowed: true}, nil
}
