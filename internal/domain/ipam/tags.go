package ipam

import "reflect"

// Tags is a free-form map of string keys to JSON scalar values, stored as a
// JSONB column.
type Tags map[string]any

// Well-known tag keys written by the allocator, the reconciler and the
// association workflow.
const (
	TagAllocatedFrom       = "allocated_from"
	TagAllocationTimestamp = "allocation_timestamp"
	TagDescription         = "description"
	TagAssociatedVPC       = "associated_vpc"
	TagAWSSubnetID         = "aws_subnet_id"
	TagAvailabilityZone    = "availability_zone"
	TagState               = "state"
	TagSyncSource          = "sync_source"
	TagLastSync            = "last_sync"
	TagDeletedFromAWS      = "deleted_from_aws"
	TagDeletionReason      = "deletion_reason"
	TagResurrectedAt       = "resurrected_at"
)

// Clone returns a shallow copy, never nil.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Matches reports whether t satisfies the required tag set: every required
// key must be present with an equal value. Extra keys on t are fine; an empty
// requirement matches anything.
func (t Tags) Matches(required Tags) bool {
	for k, want := range required {
		got, ok := t[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// GetString returns the tag value if present and a string.
func (t Tags) GetString(key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}
