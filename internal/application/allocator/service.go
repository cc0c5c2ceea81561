package allocator

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"cloudipam/internal/application/prefix"
	"cloudipam/internal/domain/ipam"

	"github.com/avast/retry-go/v4"
)

// availableScanBound caps the free-subnet count reported alongside an
// allocation. Counting every free /28 of an IPv6 /48 would never finish, so
// the count is advisory and saturates here.
const availableScanBound = 16

// allocateAttempts bounds the retries taken when a concurrent writer claims
// the candidate subnet between the scan and the insert.
const allocateAttempts = 3

// Service implements first-fit subnet allocation on top of the prefix store.
// Writes go through the prefix service so allocations obey the same duplicate
// and sibling-overlap validation as manual creates.
type Service struct {
	repo     ipam.Repository
	prefixes *prefix.Service
}

// NewService creates a new allocator service
func NewService(repo ipam.Repository, prefixes *prefix.Service) *Service {
	return &Service{
		repo:     repo,
		prefixes: prefixes,
	}
}

// AllocateSubnet finds the first free subnet of the requested mask length
// under a matching parent and records it. Parents are considered in address
// order; within a parent, candidate subnets in address order. A concurrent
// insert of the chosen subnet surfaces as a sibling overlap and triggers a
// bounded re-scan.
func (s *Service) AllocateSubnet(ctx context.Context, req *ipam.AllocationRequest) (*ipam.Allocation, error) {
	if _, err := s.repo.GetVRF(ctx, req.VRFID); err != nil {
		return nil, err
	}

	var result *ipam.Allocation
	err := retry.Do(
		func() error {
			alloc, err := s.allocateOnce(ctx, req)
			if err != nil {
				return err
			}
			result = alloc
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(allocateAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ipam.ErrSiblingOverlap) || errors.Is(err, ipam.ErrDuplicateCIDR)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) allocateOnce(ctx context.Context, req *ipam.AllocationRequest) (*ipam.Allocation, error) {
	parents, err := s.candidateParents(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("%w: no parent matches the request in VRF %s", ipam.ErrNoSpaceAvailable, req.VRFID)
	}

	for _, parent := range parents {
		free, err := s.freeSubnets(ctx, parent, req.MaskLength, availableScanBound)
		if err != nil {
			if errors.Is(err, ipam.ErrInvalidMaskLength) && req.ParentPrefixID == "" {
				// tag-matched parent too small for the request, try the next
				continue
			}
			return nil, err
		}
		if len(free) == 0 {
			continue
		}

		chosen := free[0]
		tags := req.Tags.Clone()
		tags[ipam.TagAllocatedFrom] = parent.ID
		tags[ipam.TagAllocationTimestamp] = time.Now().UTC().Format(time.RFC3339)
		if req.Description != "" {
			tags[ipam.TagDescription] = req.Description
		}

		routable := parent.Routable
		if req.Routable != nil {
			routable = *req.Routable
		}

		p := &ipam.Prefix{
			ID:              ipam.ManualPrefixID(req.VRFID, chosen),
			VRFID:           req.VRFID,
			CIDR:            chosen,
			Tags:            tags,
			Source:          ipam.SourceManual,
			Routable:        routable,
			VPCChildrenType: req.VPCChildrenType,
		}
		if err := s.prefixes.InsertAllocated(ctx, p, parent.ID); err != nil {
			return nil, err
		}

		return &ipam.Allocation{
			PrefixID:       p.ID,
			AllocatedCIDR:  chosen.String(),
			ParentPrefixID: parent.ID,
			ParentCIDR:     parent.CIDR.String(),
			AvailableCount: len(free) - 1,
			Tags:           tags,
			Routable:       routable,
			CreatedAt:      p.CreatedAt,
		}, nil
	}

	considered := make([]string, len(parents))
	for i, p := range parents {
		considered[i] = p.CIDR.String()
	}
	return nil, fmt.Errorf("%w: no free /%d under %s", ipam.ErrNoSpaceAvailable, req.MaskLength, strings.Join(considered, ", "))
}

// PreviewAvailableSubnets lists up to limit free subnets of the given mask
// length under a prefix, without allocating anything.
func (s *Service) PreviewAvailableSubnets(ctx context.Context, prefixID string, maskLength, limit int) ([]string, error) {
	parent, err := s.repo.GetPrefix(ctx, prefixID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > availableScanBound {
		limit = availableScanBound
	}
	free, err := s.freeSubnets(ctx, parent, maskLength, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(free))
	for i, p := range free {
		out[i] = p.String()
	}
	return out, nil
}

// candidateParents selects the prefixes an allocation may carve from: the
// explicit parent when given, otherwise every manual prefix of the VRF whose
// tags contain the requested set. Most specific parents come first, ties
// break on ascending network address. Tombstoned prefixes and prefixes
// reserved for VPC children never qualify.
func (s *Service) candidateParents(ctx context.Context, req *ipam.AllocationRequest) ([]*ipam.Prefix, error) {
	if req.ParentPrefixID != "" {
		parent, err := s.repo.GetPrefix(ctx, req.ParentPrefixID)
		if err != nil {
			return nil, err
		}
		if parent.VRFID != req.VRFID {
			return nil, fmt.Errorf("%w: parent is in VRF %s", ipam.ErrParentMismatch, parent.VRFID)
		}
		if parent.Source != ipam.SourceManual {
			return nil, fmt.Errorf("%w: parent is not a manual prefix", ipam.ErrParentMismatch)
		}
		if parent.VPCChildrenType {
			return nil, ipam.ErrVPCChildrenOnly
		}
		if !parent.Tags.Matches(req.Tags) {
			return nil, fmt.Errorf("%w: parent tags do not match the request", ipam.ErrNoSpaceAvailable)
		}
		if req.Routable != nil && *req.Routable && !parent.Routable {
			return nil, fmt.Errorf("%w: parent %s is not routable", ipam.ErrNoSpaceAvailable, parent.CIDR)
		}
		if req.MaskLength <= parent.CIDR.Bits() || req.MaskLength > parent.CIDR.Addr().BitLen() {
			return nil, fmt.Errorf("%w: /%d inside %s", ipam.ErrInvalidMaskLength, req.MaskLength, parent.CIDR)
		}
		return []*ipam.Prefix{parent}, nil
	}

	all, err := s.repo.ListPrefixes(ctx, ipam.PrefixFilter{VRFID: req.VRFID, Source: ipam.SourceManual})
	if err != nil {
		return nil, err
	}
	out := make([]*ipam.Prefix, 0)
	for _, p := range all {
		if p.VPCChildrenType || p.Tombstoned() {
			continue
		}
		// a routable request cannot be served from non-routable space
		if req.Routable != nil && *req.Routable && !p.Routable {
			continue
		}
		if !p.Tags.Matches(req.Tags) {
			continue
		}
		if req.MaskLength <= p.CIDR.Bits() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CIDR, out[j].CIDR
		if a.Bits() != b.Bits() {
			return a.Bits() > b.Bits()
		}
		return a.Addr().Compare(b.Addr()) < 0
	})
	return out, nil
}

// freeSubnets walks the /maskLength subnets of parent in address order and
// returns up to limit that do not overlap any existing child.
func (s *Service) freeSubnets(ctx context.Context, parent *ipam.Prefix, maskLength, limit int) ([]netip.Prefix, error) {
	children, err := s.repo.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	iter, err := ipam.Subnets(parent.CIDR, maskLength)
	if err != nil {
		return nil, err
	}
	var free []netip.Prefix
	for len(free) < limit {
		candidate, ok := iter.Next()
		if !ok {
			break
		}
		taken := false
		for _, child := range children {
			if !ipam.Overlaps(child.CIDR, candidate) {
				continue
			}
			taken = true
			if child.CIDR.Bits() < candidate.Bits() {
				// the child covers this candidate and more, jump past it
				iter.SkipPast(child.CIDR)
			}
			break
		}
		if !taken {
			free = append(free, candidate)
		}
	}
	return free, nil
}
