package sync

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"cloudipam/internal/application/prefix"
	"cloudipam/internal/domain/ipam"

	"github.com/rs/zerolog"
)

// SubnetRecord is one subnet as reported by a cloud provider.
type SubnetRecord struct {
	SubnetID         string
	CIDR             netip.Prefix
	AvailabilityZone string
	State            string
}

// CloudSource abstracts the provider API the reconciler reads from.
type CloudSource interface {
	// Provider names the cloud this source talks to.
	Provider() ipam.Provider
	// Reachable probes the provider API; a non-nil error skips the cycle.
	Reachable(ctx context.Context) error
	// ListSubnets returns every subnet of the given provider VPC.
	ListSubnets(ctx context.Context, providerVPCID string) ([]SubnetRecord, error)
}

// Service reconciles the prefix store against cloud provider state: new
// subnets appear as source=vpc prefixes, vanished ones are tombstoned, and
// returning ones are resurrected. Real deletion is left to operators.
type Service struct {
	repo     ipam.Repository
	prefixes *prefix.Service
	source   CloudSource
	log      zerolog.Logger

	interval         time.Duration
	maxSubnetsPerVPC int
	batchSize        int
	dbBatchSize      int
}

// Options tune the reconciler loop.
type Options struct {
	Interval         time.Duration
	MaxSubnetsPerVPC int
	// BatchSize bounds how many discovered/refreshed subnets are processed
	// between progress logs; DBBatchSize does the same for tombstone writes.
	BatchSize   int
	DBBatchSize int
}

// NewService creates a new sync service
func NewService(repo ipam.Repository, prefixes *prefix.Service, source CloudSource, log zerolog.Logger, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.MaxSubnetsPerVPC <= 0 {
		opts.MaxSubnetsPerVPC = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.DBBatchSize <= 0 {
		opts.DBBatchSize = 100
	}
	return &Service{
		repo:             repo,
		prefixes:         prefixes,
		source:           source,
		log:              log,
		interval:         opts.Interval,
		maxSubnetsPerVPC: opts.MaxSubnetsPerVPC,
		batchSize:        opts.BatchSize,
		dbBatchSize:      opts.DBBatchSize,
	}
}

// Run executes reconciliation cycles every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.RunCycle(ctx); err != nil {
		s.log.Warn().Err(err).Msg("sync cycle skipped")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sync cycle skipped")
			}
		}
	}
}

// RunCycle reconciles every registered VPC of the source's provider once.
// When the provider API is unreachable the cycle is skipped and the store is
// left untouched, so an outage never masquerades as mass subnet deletion.
func (s *Service) RunCycle(ctx context.Context) error {
	if err := s.source.Reachable(ctx); err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}

	vpcs, err := s.repo.ListVPCsByProvider(ctx, s.source.Provider())
	if err != nil {
		return fmt.Errorf("failed to list VPCs: %w", err)
	}

	var wg sync.WaitGroup
	for _, vpc := range vpcs {
		wg.Add(1)
		go func(vpc *ipam.VPC) {
			defer wg.Done()
			if err := s.syncVPC(ctx, vpc); err != nil {
				s.log.Warn().Err(err).Str("vpc_id", vpc.ID).Msg("VPC sync skipped")
			}
		}(vpc)
	}
	wg.Wait()
	return nil
}

// syncVPC reconciles one VPC. A fetch or list failure aborts the VPC without
// touching its prefixes.
func (s *Service) syncVPC(ctx context.Context, vpc *ipam.VPC) error {
	records, err := s.source.ListSubnets(ctx, vpc.ProviderVPCID)
	if err != nil {
		return fmt.Errorf("failed to list provider subnets: %w", err)
	}
	if len(records) > s.maxSubnetsPerVPC {
		s.log.Warn().
			Str("vpc_id", vpc.ID).
			Int("count", len(records)).
			Int("limit", s.maxSubnetsPerVPC).
			Msg("subnet count exceeds limit, truncating")
		records = records[:s.maxSubnetsPerVPC]
	}

	existing, err := s.repo.ListVPCSubnets(ctx, vpc.ID)
	if err != nil {
		return fmt.Errorf("failed to list stored subnets: %w", err)
	}
	associations, err := s.repo.ListAssociationsByVPC(ctx, vpc.ID)
	if err != nil {
		return fmt.Errorf("failed to list associations: %w", err)
	}

	byCIDR := make(map[netip.Prefix]*ipam.Prefix, len(existing))
	for _, p := range existing {
		// public IPs attached to the VPC live in public-vrf and are not
		// subject to subnet reconciliation
		if p.VRFID == ipam.PublicVRFID {
			continue
		}
		byCIDR[p.CIDR] = p
	}

	type refresh struct {
		p   *ipam.Prefix
		rec SubnetRecord
	}
	var created []SubnetRecord
	var updated []refresh
	seen := make(map[netip.Prefix]bool, len(records))
	for _, rec := range records {
		cidr := rec.CIDR.Masked()
		seen[cidr] = true
		if p, ok := byCIDR[cidr]; ok {
			updated = append(updated, refresh{p: p, rec: rec})
		} else {
			created = append(created, rec)
		}
	}
	var deleted []*ipam.Prefix
	for cidr, p := range byCIDR {
		if seen[cidr] || p.Tombstoned() {
			continue
		}
		deleted = append(deleted, p)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for start := 0; start < len(created); start += s.batchSize {
		end := min(start+s.batchSize, len(created))
		for _, rec := range created[start:end] {
			s.adoptSubnet(ctx, vpc, rec, associations, now)
		}
		s.logProgress(vpc, "adoption", end, len(created))
	}
	for start := 0; start < len(updated); start += s.batchSize {
		end := min(start+s.batchSize, len(updated))
		for _, u := range updated[start:end] {
			s.refreshSubnet(ctx, vpc, u.p, u.rec, now)
		}
		s.logProgress(vpc, "refresh", end, len(updated))
	}
	for start := 0; start < len(deleted); start += s.dbBatchSize {
		end := min(start+s.dbBatchSize, len(deleted))
		for _, p := range deleted[start:end] {
			s.tombstoneSubnet(ctx, vpc, p, now)
		}
		s.logProgress(vpc, "tombstone", end, len(deleted))
	}
	return nil
}

func (s *Service) logProgress(vpc *ipam.VPC, phase string, done, total int) {
	s.log.Debug().
		Str("vpc_id", vpc.ID).
		Str("phase", phase).
		Int("done", done).
		Int("total", total).
		Msg("sync progress")
}

// refreshSubnet updates the provider-owned tags of a known subnet and
// resurrects it when it was previously tombstoned.
func (s *Service) refreshSubnet(ctx context.Context, vpc *ipam.VPC, p *ipam.Prefix, rec SubnetRecord, now string) {
	if p.Tombstoned() {
		delete(p.Tags, ipam.TagDeletedFromAWS)
		delete(p.Tags, ipam.TagDeletionReason)
		p.Tags[ipam.TagResurrectedAt] = now
		s.log.Info().
			Str("vpc_id", vpc.ID).
			Str("prefix_id", p.ID).
			Msg("subnet resurrected")
	}
	p.Tags[ipam.TagAWSSubnetID] = rec.SubnetID
	p.Tags[ipam.TagAvailabilityZone] = rec.AvailabilityZone
	p.Tags[ipam.TagState] = rec.State
	p.Tags[ipam.TagSyncSource] = "aws_auto_sync"
	p.Tags[ipam.TagLastSync] = now

	if err := s.repo.UpdatePrefix(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("prefix_id", p.ID).Msg("failed to refresh subnet")
	}
}

// adoptSubnet records a newly discovered subnet. Placement follows the VPC's
// associations: the association whose CIDR contains the subnet decides the
// VRF and routability; a subnet outside every association lands as a
// non-routable root in the VPC's auto-created VRF.
func (s *Service) adoptSubnet(ctx context.Context, vpc *ipam.VPC, rec SubnetRecord, associations []*ipam.VPCPrefixAssociation, now string) {
	cidr := rec.CIDR.Masked()

	vrfID, routable, err := s.resolvePlacement(ctx, vpc, cidr, associations)
	if err != nil {
		s.log.Warn().Err(err).
			Str("vpc_id", vpc.ID).
			Str("cidr", cidr.String()).
			Msg("failed to place subnet")
		return
	}

	p := &ipam.Prefix{
		ID:    ipam.VPCSubnetPrefixID(vpc.ID, cidr),
		VRFID: vrfID,
		CIDR:  cidr,
		Tags: ipam.Tags{
			ipam.TagAWSSubnetID:      rec.SubnetID,
			ipam.TagAvailabilityZone: rec.AvailabilityZone,
			ipam.TagState:            rec.State,
			ipam.TagSyncSource:       "aws_auto_sync",
			ipam.TagLastSync:         now,
		},
		Source:   ipam.SourceVPC,
		Routable: routable,
		VPCID:    vpc.ID,
	}
	if err := s.prefixes.InsertDiscovered(ctx, p); err != nil {
		if errors.Is(err, ipam.ErrDuplicateCIDR) {
			// concurrent writer beat us to it; the next cycle refreshes it
			s.log.Debug().
				Str("vpc_id", vpc.ID).
				Str("cidr", cidr.String()).
				Msg("subnet already recorded")
			return
		}
		s.log.Warn().Err(err).
			Str("vpc_id", vpc.ID).
			Str("cidr", cidr.String()).
			Msg("failed to adopt subnet")
		return
	}
	s.log.Info().
		Str("vpc_id", vpc.ID).
		Str("prefix_id", p.ID).
		Str("vrf_id", vrfID).
		Msg("subnet adopted")
}

// resolvePlacement picks the VRF and routability for a discovered subnet. A
// routable association places the subnet in its parent's VRF; a non-routable
// one isolates it in the per-VPC VRF so the same CIDR can repeat across VPCs.
func (s *Service) resolvePlacement(ctx context.Context, vpc *ipam.VPC, cidr netip.Prefix, associations []*ipam.VPCPrefixAssociation) (string, bool, error) {
	for _, assoc := range associations {
		if !ipam.SameFamily(assoc.VPCPrefixCIDR, cidr) {
			continue
		}
		if cidr.Bits() < assoc.VPCPrefixCIDR.Bits() || !assoc.VPCPrefixCIDR.Contains(cidr.Addr()) {
			continue
		}
		if !assoc.Routable {
			vrfID, err := s.ensureAutoVRF(ctx, vpc)
			if err != nil {
				return "", false, err
			}
			return vrfID, false, nil
		}
		parent, err := s.repo.GetPrefix(ctx, assoc.ParentPrefixID)
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve association parent: %w", err)
		}
		return parent.VRFID, true, nil
	}

	// no association covers the subnet: isolate it in the per-VPC VRF
	s.log.Warn().
		Str("vpc_id", vpc.ID).
		Str("cidr", cidr.String()).
		Msg("subnet outside every association CIDR, keeping as orphan")
	vrfID, err := s.ensureAutoVRF(ctx, vpc)
	if err != nil {
		return "", false, err
	}
	return vrfID, false, nil
}

// ensureAutoVRF creates the non-routable per-VPC VRF on first use.
func (s *Service) ensureAutoVRF(ctx context.Context, vpc *ipam.VPC) (string, error) {
	vrfID := ipam.AutoVRFID(vpc)
	err := s.prefixes.EnsureVRF(ctx, &ipam.VRF{
		ID:           vrfID,
		Description:  fmt.Sprintf("Auto-created for VPC %s", vpc.ProviderVPCID),
		Tags:         ipam.Tags{ipam.TagSyncSource: "aws_auto_sync"},
		RoutableFlag: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to ensure VRF %s: %w", vrfID, err)
	}
	return vrfID, nil
}

// tombstoneSubnet soft-deletes a subnet that the provider no longer reports.
func (s *Service) tombstoneSubnet(ctx context.Context, vpc *ipam.VPC, p *ipam.Prefix, now string) {
	p.Tags[ipam.TagDeletedFromAWS] = now
	p.Tags[ipam.TagDeletionReason] = "aws_subnet_not_found"
	if err := s.repo.UpdatePrefix(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("prefix_id", p.ID).Msg("failed to tombstone subnet")
		return
	}
	s.log.Info().
		Str("vpc_id", vpc.ID).
		Str("prefix_id", p.ID).
		Msg("subnet tombstoned")
}
