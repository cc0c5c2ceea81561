package prefix

import (
	"context"
	"fmt"

	"cloudipam/internal/domain/ipam"

	"github.com/google/uuid"
)

// Service implements the business logic for VRFs, VPCs, prefixes and
// VPC-prefix associations. defaultVRFID, when configured, resolves
// associations that name a CIDR without a VRF.
type Service struct {
	repo         ipam.Repository
	defaultVRFID string
}

// NewService creates a new prefix service
func NewService(repo ipam.Repository, defaultVRFID string) *Service {
	return &Service{
		repo:         repo,
		defaultVRFID: defaultVRFID,
	}
}

// CreateVRF creates a new routing domain.
func (s *Service) CreateVRF(ctx context.Context, req *ipam.VRFCreateRequest) (*ipam.VRF, error) {
	if req.IsDefault {
		if err := s.checkNoOtherDefault(ctx, req.VRFID); err != nil {
			return nil, err
		}
	}

	routable := true
	if req.RoutableFlag != nil {
		routable = *req.RoutableFlag
	}

	vrf := &ipam.VRF{
		ID:           req.VRFID,
		Description:  req.Description,
		Tags:         req.Tags.Clone(),
		RoutableFlag: routable,
		IsDefault:    req.IsDefault,
	}

	if err := s.repo.CreateVRF(ctx, vrf); err != nil {
		return nil, fmt.Errorf("failed to create VRF: %w", err)
	}
	return vrf, nil
}

// GetVRF retrieves a VRF by ID
func (s *Service) GetVRF(ctx context.Context, vrfID string) (*ipam.VRF, error) {
	return s.repo.GetVRF(ctx, vrfID)
}

// ListVRFs retrieves all VRFs
func (s *Service) ListVRFs(ctx context.Context) ([]*ipam.VRF, error) {
	return s.repo.ListVRFs(ctx)
}

// UpdateVRF applies a partial update to a VRF.
func (s *Service) UpdateVRF(ctx context.Context, vrfID string, req *ipam.VRFUpdateRequest) (*ipam.VRF, error) {
	vrf, err := s.repo.GetVRF(ctx, vrfID)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		vrf.Description = *req.Description
	}
	if req.Tags != nil {
		vrf.Tags = req.Tags.Clone()
	}
	if req.RoutableFlag != nil {
		vrf.RoutableFlag = *req.RoutableFlag
	}
	if req.IsDefault != nil {
		if *req.IsDefault {
			if err := s.checkNoOtherDefault(ctx, vrfID); err != nil {
				return nil, err
			}
		}
		vrf.IsDefault = *req.IsDefault
	}

	if err := s.repo.UpdateVRF(ctx, vrf); err != nil {
		return nil, fmt.Errorf("failed to update VRF: %w", err)
	}
	return vrf, nil
}

// DeleteVRF removes an empty, non-reserved VRF.
func (s *Service) DeleteVRF(ctx context.Context, vrfID string) error {
	if vrfID == ipam.PublicVRFID {
		return ipam.ErrVRFReserved
	}
	vrf, err := s.repo.GetVRF(ctx, vrfID)
	if err != nil {
		return err
	}
	if vrf.IsDefault {
		return ipam.ErrVRFReserved
	}
	count, err := s.repo.CountPrefixesByVRF(ctx, vrfID)
	if err != nil {
		return fmt.Errorf("failed to count prefixes: %w", err)
	}
	if count > 0 {
		return ipam.ErrVRFReferenced
	}
	return s.repo.DeleteVRF(ctx, vrfID)
}

// DefaultVRF returns the VRF marked default, or ErrVRFNotFound when none is.
func (s *Service) DefaultVRF(ctx context.Context) (*ipam.VRF, error) {
	vrfs, err := s.repo.ListVRFs(ctx)
	if err != nil {
		return nil, err
	}
	for _, vrf := range vrfs {
		if vrf.IsDefault {
			return vrf, nil
		}
	}
	return nil, ipam.ErrVRFNotFound
}

func (s *Service) checkNoOtherDefault(ctx context.Context, vrfID string) error {
	vrfs, err := s.repo.ListVRFs(ctx)
	if err != nil {
		return err
	}
	for _, vrf := range vrfs {
		if vrf.IsDefault && vrf.ID != vrfID {
			return ipam.ErrDefaultVRFExists
		}
	}
	return nil
}

// CreateVPC registers a cloud VPC.
func (s *Service) CreateVPC(ctx context.Context, req *ipam.VPCCreateRequest) (*ipam.VPC, error) {
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ipam.ErrInvalidProvider, req.Provider)
	}

	vpc := &ipam.VPC{
		ID:                uuid.New().String(),
		Description:       req.Description,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		ProviderVPCID:     req.ProviderVPCID,
		Region:            req.Region,
		Tags:              req.Tags.Clone(),
	}

	if err := s.repo.CreateVPC(ctx, vpc); err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	return vpc, nil
}

// GetVPC retrieves a VPC by ID
func (s *Service) GetVPC(ctx context.Context, vpcID string) (*ipam.VPC, error) {
	return s.repo.GetVPC(ctx, vpcID)
}

// ListVPCs retrieves all registered VPCs
func (s *Service) ListVPCs(ctx context.Context) ([]*ipam.VPC, error) {
	return s.repo.ListVPCs(ctx)
}

// UpdateVPC applies a partial update to a VPC.
func (s *Service) UpdateVPC(ctx context.Context, vpcID string, req *ipam.VPCUpdateRequest) (*ipam.VPC, error) {
	vpc, err := s.repo.GetVPC(ctx, vpcID)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		vpc.Description = *req.Description
	}
	if req.Region != nil {
		vpc.Region = *req.Region
	}
	if req.Tags != nil {
		vpc.Tags = req.Tags.Clone()
	}

	if err := s.repo.UpdateVPC(ctx, vpc); err != nil {
		return nil, fmt.Errorf("failed to update VPC: %w", err)
	}
	return vpc, nil
}

// DeleteVPC removes a VPC that no prefix or association references.
func (s *Service) DeleteVPC(ctx context.Context, vpcID string) error {
	if _, err := s.repo.GetVPC(ctx, vpcID); err != nil {
		return err
	}
	subnets, err := s.repo.ListVPCSubnets(ctx, vpcID)
	if err != nil {
		return fmt.Errorf("failed to list VPC subnets: %w", err)
	}
	if len(subnets) > 0 {
		return ipam.ErrVPCReferenced
	}
	assocs, err := s.repo.ListAssociationsByVPC(ctx, vpcID)
	if err != nil {
		return fmt.Errorf("failed to list associations: %w", err)
	}
	if len(assocs) > 0 {
		return ipam.ErrVPCReferenced
	}
	return s.repo.DeleteVPC(ctx, vpcID)
}
