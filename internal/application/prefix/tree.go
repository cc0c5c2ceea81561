package prefix

import (
	"context"

	"cloudipam/internal/domain/ipam"
)

// Tree returns prefixes in depth-first order: each parent immediately
// followed by its subtree, siblings in address order. Indentation levels are
// recomputed on the way out so the caller can render the forest as-is. An
// empty vrfID walks every VRF.
func (s *Service) Tree(ctx context.Context, vrfID string) ([]*ipam.Prefix, error) {
	if vrfID != "" {
		if _, err := s.repo.GetVRF(ctx, vrfID); err != nil {
			return nil, err
		}
	}
	all, err := s.repo.ListPrefixes(ctx, ipam.PrefixFilter{VRFID: vrfID})
	if err != nil {
		return nil, err
	}

	byParent := make(map[string][]*ipam.Prefix, len(all))
	for _, p := range all {
		byParent[p.ParentPrefixID] = append(byParent[p.ParentPrefixID], p)
	}

	out := make([]*ipam.Prefix, 0, len(all))
	var walk func(parentID string, level int)
	walk = func(parentID string, level int) {
		for _, p := range byParent[parentID] {
			p.IndentationLevel = level
			out = append(out, p)
			walk(p.ID, level+1)
		}
	}
	walk("", 0)
	return out, nil
}
