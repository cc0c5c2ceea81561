package prefix

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"cloudipam/internal/domain/ipam"

	"github.com/gaissmai/bart"
)

// CreatePrefix inserts a manually managed prefix into the tree. When no
// parent is given the deepest containing prefix in the VRF becomes the
// parent; existing siblings that fall inside the new prefix are re-parented
// under it.
func (s *Service) CreatePrefix(ctx context.Context, req *ipam.PrefixCreateRequest) (*ipam.Prefix, error) {
	cidr, err := ipam.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, err
	}
	vrf, err := s.repo.GetVRF(ctx, req.VRFID)
	if err != nil {
		return nil, err
	}

	routable := vrf.RoutableFlag
	if req.Routable != nil {
		routable = *req.Routable
	}

	p := &ipam.Prefix{
		ID:              ipam.ManualPrefixID(req.VRFID, cidr),
		VRFID:           req.VRFID,
		CIDR:            cidr,
		Tags:            req.Tags.Clone(),
		Source:          ipam.SourceManual,
		Routable:        routable,
		VPCChildrenType: req.VPCChildrenType,
	}
	if err := s.insertPrefix(ctx, p, req.ParentPrefixID); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePublicIP records a public internet address in the reserved
// public-vrf. Public entries always root there without a parent, regardless
// of what other public-vrf prefixes would contain them. With a VPC id the
// entry is VPC-attached and reconciler-owned; without one it is a plain
// manual entry.
func (s *Service) CreatePublicIP(ctx context.Context, req *ipam.PublicIPCreateRequest) (*ipam.Prefix, error) {
	cidr, err := ipam.ParseCIDR(req.CIDR)
	if err != nil {
		return nil, err
	}

	p := &ipam.Prefix{
		VRFID:    ipam.PublicVRFID,
		CIDR:     cidr,
		Tags:     req.Tags.Clone(),
		Source:   ipam.SourceManual,
		Routable: true,
	}
	if req.VPCID != "" {
		vpc, err := s.repo.GetVPC(ctx, req.VPCID)
		if err != nil {
			return nil, err
		}
		p.ID = ipam.VPCSubnetPrefixID(vpc.ID, cidr)
		p.Source = ipam.SourceVPC
		p.VPCID = vpc.ID
		p.VPCChildrenType = true
	} else {
		p.ID = ipam.PublicIPPrefixID(cidr)
	}

	if _, err := s.repo.GetPrefixByCIDR(ctx, p.VRFID, p.CIDR); err == nil {
		return nil, ipam.ErrDuplicateCIDR
	} else if !errors.Is(err, ipam.ErrPrefixNotFound) {
		return nil, fmt.Errorf("failed to look up CIDR: %w", err)
	}
	if err := s.repo.CreatePrefix(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrefix retrieves a prefix by ID
func (s *Service) GetPrefix(ctx context.Context, prefixID string) (*ipam.Prefix, error) {
	return s.repo.GetPrefix(ctx, prefixID)
}

// ListPrefixes retrieves prefixes matching the filter.
func (s *Service) ListPrefixes(ctx context.Context, filter ipam.PrefixFilter) ([]*ipam.Prefix, error) {
	return s.repo.ListPrefixes(ctx, filter)
}

// ListChildren retrieves the direct children of a prefix.
func (s *Service) ListChildren(ctx context.Context, prefixID string) ([]*ipam.Prefix, error) {
	if _, err := s.repo.GetPrefix(ctx, prefixID); err != nil {
		return nil, err
	}
	return s.repo.ListChildren(ctx, prefixID)
}

// UpdatePrefix applies a partial update to a manually managed prefix.
// VPC-sourced prefixes belong to the reconciler and cannot be edited.
func (s *Service) UpdatePrefix(ctx context.Context, prefixID string, req *ipam.PrefixUpdateRequest) (*ipam.Prefix, error) {
	p, err := s.repo.GetPrefix(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	if p.Source == ipam.SourceVPC {
		return nil, ipam.ErrVPCSourcedImmutable
	}

	if req.Tags != nil {
		p.Tags = req.Tags.Clone()
	}
	if req.Routable != nil {
		p.Routable = *req.Routable
	}
	if req.VPCChildrenType != nil {
		p.VPCChildrenType = *req.VPCChildrenType
	}

	if err := s.repo.UpdatePrefix(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update prefix: %w", err)
	}
	return p, nil
}

// DeletePrefix removes a leaf prefix. Prefixes with children or VPC
// associations are protected; VPC-sourced prefixes can only be deleted once
// the reconciler has tombstoned them.
func (s *Service) DeletePrefix(ctx context.Context, prefixID string) error {
	p, err := s.repo.GetPrefix(ctx, prefixID)
	if err != nil {
		return err
	}
	if p.Source == ipam.SourceVPC && !p.Tombstoned() {
		return ipam.ErrVPCSourcedImmutable
	}

	children, err := s.repo.ListChildren(ctx, prefixID)
	if err != nil {
		return fmt.Errorf("failed to list children: %w", err)
	}
	if len(children) > 0 {
		return ipam.ErrPrefixHasChildren
	}
	assocs, err := s.repo.ListAssociationsByPrefix(ctx, prefixID)
	if err != nil {
		return fmt.Errorf("failed to list associations: %w", err)
	}
	if len(assocs) > 0 {
		return ipam.ErrPrefixAssociated
	}
	return s.repo.DeletePrefix(ctx, prefixID)
}

// CanCreateChild answers whether a manual child prefix may be created under
// the given prefix.
func (s *Service) CanCreateChild(ctx context.Context, prefixID string) (*ipam.Capability, error) {
	p, err := s.repo.GetPrefix(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	if p.Source == ipam.SourceVPC {
		return &ipam.Capability{Allowed: false, Reason: "cloud-sourced subnets cannot be subdivided manually"}, nil
	}
	if p.VPCChildrenType {
		return &ipam.Capability{Allowed: false, Reason: "prefix admits only VPC-sourced children"}, nil
	}
	if p.Tombstoned() {
		return &ipam.Capability{Allowed: false, Reason: "prefix has been deleted from the cloud provider"}, nil
	}
	return &ipam.Capability{Allowed: true}, nil
}

// InsertAllocated places an allocator-built prefix under its chosen parent,
// running the same duplicate and sibling-overlap validation as manual
// creates. A concurrent writer claiming the same CIDR surfaces as
// ErrDuplicateCIDR; a nested concurrent child is adopted by reparenting.
func (s *Service) InsertAllocated(ctx context.Context, p *ipam.Prefix, parentPrefixID string) error {
	return s.insertPrefix(ctx, p, parentPrefixID)
}

// InsertDiscovered places a reconciler-built prefix into the tree, resolving
// its parent by longest prefix match within its VRF.
func (s *Service) InsertDiscovered(ctx context.Context, p *ipam.Prefix) error {
	return s.insertPrefix(ctx, p, "")
}

// EnsureVRF creates the VRF if it does not exist yet.
func (s *Service) EnsureVRF(ctx context.Context, vrf *ipam.VRF) error {
	err := s.repo.CreateVRF(ctx, vrf)
	if errors.Is(err, ipam.ErrDuplicateVRF) {
		return nil
	}
	return err
}

// insertPrefix places p in the tree and persists it. explicitParent, when
// set, overrides the longest-prefix-match parent resolution.
func (s *Service) insertPrefix(ctx context.Context, p *ipam.Prefix, explicitParent string) error {
	if _, err := s.repo.GetPrefixByCIDR(ctx, p.VRFID, p.CIDR); err == nil {
		return ipam.ErrDuplicateCIDR
	} else if !errors.Is(err, ipam.ErrPrefixNotFound) {
		return fmt.Errorf("failed to look up CIDR: %w", err)
	}

	var parent *ipam.Prefix
	var err error
	if explicitParent != "" {
		parent, err = s.repo.GetPrefix(ctx, explicitParent)
		if err != nil {
			return err
		}
		if parent.VRFID != p.VRFID {
			return fmt.Errorf("%w: parent is in VRF %s", ipam.ErrParentMismatch, parent.VRFID)
		}
		if !ipam.SameFamily(parent.CIDR, p.CIDR) {
			return ipam.ErrFamilyMismatch
		}
		if !ipam.StrictlyContains(parent.CIDR, p.CIDR) {
			return fmt.Errorf("%w: %s outside %s", ipam.ErrParentMismatch, p.CIDR, parent.CIDR)
		}
	} else {
		parent, err = s.resolveParent(ctx, p.VRFID, p.CIDR)
		if err != nil {
			return err
		}
	}

	if parent != nil {
		if parent.VPCChildrenType && p.Source == ipam.SourceManual {
			return ipam.ErrVPCChildrenOnly
		}
		p.ParentPrefixID = parent.ID
		p.IndentationLevel = parent.IndentationLevel + 1
	}

	var siblings []*ipam.Prefix
	if parent != nil {
		siblings, err = s.repo.ListChildren(ctx, parent.ID)
	} else {
		siblings, err = s.repo.ListRootPrefixes(ctx, p.VRFID)
	}
	if err != nil {
		return fmt.Errorf("failed to list siblings: %w", err)
	}

	var adopted []*ipam.Prefix
	for _, sib := range siblings {
		if !ipam.Overlaps(sib.CIDR, p.CIDR) {
			continue
		}
		if ipam.StrictlyContains(p.CIDR, sib.CIDR) {
			adopted = append(adopted, sib)
			continue
		}
		return fmt.Errorf("%w: %s overlaps %s", ipam.ErrSiblingOverlap, p.CIDR, sib.CIDR)
	}

	if err := s.repo.CreatePrefix(ctx, p); err != nil {
		return err
	}
	for _, child := range adopted {
		child.ParentPrefixID = p.ID
		if err := s.reindent(ctx, child, p.IndentationLevel+1); err != nil {
			return err
		}
	}
	return nil
}

// resolveParent finds the deepest existing prefix of the VRF that strictly
// contains cidr, using a longest-prefix-match table.
func (s *Service) resolveParent(ctx context.Context, vrfID string, cidr netip.Prefix) (*ipam.Prefix, error) {
	existing, err := s.repo.ListPrefixes(ctx, ipam.PrefixFilter{VRFID: vrfID})
	if err != nil {
		return nil, fmt.Errorf("failed to list prefixes: %w", err)
	}
	table := new(bart.Table[*ipam.Prefix])
	for _, p := range existing {
		if ipam.SameFamily(p.CIDR, cidr) && p.CIDR.Bits() < cidr.Bits() {
			table.Insert(p.CIDR, p)
		}
	}
	if _, parent, ok := table.LookupPrefixLPM(cidr); ok {
		return parent, nil
	}
	return nil, nil
}

// reindent sets the indentation level of a subtree after re-parenting.
func (s *Service) reindent(ctx context.Context, p *ipam.Prefix, level int) error {
	p.IndentationLevel = level
	if err := s.repo.UpdatePrefix(ctx, p); err != nil {
		return fmt.Errorf("failed to re-parent %s: %w", p.ID, err)
	}
	children, err := s.repo.ListChildren(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to list children: %w", err)
	}
	for _, child := range children {
		if err := s.reindent(ctx, child, level+1); err != nil {
			return err
		}
	}
	return nil
}
