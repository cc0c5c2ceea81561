package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"cloudipam/internal/domain/ipam"

	"github.com/lib/pq"
)

// Repository is a Postgres-backed implementation of ipam.Repository. CIDRs
// are stored in canonical text form; tags as JSONB. Unique constraints carry
// the conflict detection, so concurrent writers racing on the same CIDR or
// request id get the corresponding typed error back.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func encodeTags(t ipam.Tags) ([]byte, error) {
	if t == nil {
		t = ipam.Tags{}
	}
	return json.Marshal(t)
}

func decodeTags(raw []byte) (ipam.Tags, error) {
	t := ipam.Tags{}
	if len(raw) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return t, nil
}

func sortByAddr(prefixes []*ipam.Prefix) {
	sort.Slice(prefixes, func(i, j int) bool {
		a, b := prefixes[i].CIDR, prefixes[j].CIDR
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c < 0
		}
		return a.Bits() < b.Bits()
	})
}

// VRF operations

func (r *Repository) CreateVRF(ctx context.Context, vrf *ipam.VRF) error {
	tags, err := encodeTags(vrf.Tags)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO vrfs (id,description,tags,routable_flag,is_default) VALUES ($1,$2,$3,$4,$5)`,
		vrf.ID, vrf.Description, tags, vrf.RoutableFlag, vrf.IsDefault)
	if err != nil {
		if isUniqueViolation(err) {
			return ipam.ErrDuplicateVRF
		}
		return fmt.Errorf("create vrf: %w", err)
	}
	return nil
}

func (r *Repository) GetVRF(ctx context.Context, vrfID string) (*ipam.VRF, error) {
	var vrf ipam.VRF
	var tags []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id,description,tags,routable_flag,is_default FROM vrfs WHERE id=$1`, vrfID).
		Scan(&vrf.ID, &vrf.Description, &tags, &vrf.RoutableFlag, &vrf.IsDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrVRFNotFound
		}
		return nil, fmt.Errorf("get vrf: %w", err)
	}
	if vrf.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &vrf, nil
}

func (r *Repository) ListVRFs(ctx context.Context) ([]*ipam.VRF, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id,description,tags,routable_flag,is_default FROM vrfs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vrfs: %w", err)
	}
	defer rows.Close()

	var out []*ipam.VRF
	for rows.Next() {
		var vrf ipam.VRF
		var tags []byte
		if err := rows.Scan(&vrf.ID, &vrf.Description, &tags, &vrf.RoutableFlag, &vrf.IsDefault); err != nil {
			return nil, fmt.Errorf("scan vrf: %w", err)
		}
		if vrf.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, &vrf)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateVRF(ctx context.Context, vrf *ipam.VRF) error {
	tags, err := encodeTags(vrf.Tags)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE vrfs SET description=$2,tags=$3,routable_flag=$4,is_default=$5 WHERE id=$1`,
		vrf.ID, vrf.Description, tags, vrf.RoutableFlag, vrf.IsDefault)
	if err != nil {
		return fmt.Errorf("update vrf: %w", err)
	}
	return requireRow(res, ipam.ErrVRFNotFound)
}

func (r *Repository) DeleteVRF(ctx context.Context, vrfID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vrfs WHERE id=$1`, vrfID)
	if err != nil {
		return fmt.Errorf("delete vrf: %w", err)
	}
	return requireRow(res, ipam.ErrVRFNotFound)
}

// VPC operations

func (r *Repository) CreateVPC(ctx context.Context, vpc *ipam.VPC) error {
	tags, err := encodeTags(vpc.Tags)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO vpcs (id,description,provider,provider_account_id,provider_vpc_id,region,tags)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		vpc.ID, vpc.Description, string(vpc.Provider), vpc.ProviderAccountID, vpc.ProviderVPCID, vpc.Region, tags)
	if err != nil {
		if isUniqueViolation(err) {
			return ipam.ErrDuplicateVPC
		}
		return fmt.Errorf("create vpc: %w", err)
	}
	return nil
}

const vpcColumns = `id,description,provider,provider_account_id,provider_vpc_id,region,tags`

func scanVPC(row interface{ Scan(...any) error }) (*ipam.VPC, error) {
	var vpc ipam.VPC
	var provider string
	var tags []byte
	if err := row.Scan(&vpc.ID, &vpc.Description, &provider, &vpc.ProviderAccountID, &vpc.ProviderVPCID, &vpc.Region, &tags); err != nil {
		return nil, err
	}
	vpc.Provider = ipam.Provider(provider)
	var err error
	if vpc.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &vpc, nil
}

func (r *Repository) GetVPC(ctx context.Context, vpcID string) (*ipam.VPC, error) {
	vpc, err := scanVPC(r.db.QueryRowContext(ctx,
		`SELECT `+vpcColumns+` FROM vpcs WHERE id=$1`, vpcID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrVPCNotFound
		}
		return nil, fmt.Errorf("get vpc: %w", err)
	}
	return vpc, nil
}

func (r *Repository) GetVPCByProviderKey(ctx context.Context, provider ipam.Provider, accountID, providerVPCID string) (*ipam.VPC, error) {
	vpc, err := scanVPC(r.db.QueryRowContext(ctx,
		`SELECT `+vpcColumns+` FROM vpcs WHERE provider=$1 AND provider_account_id=$2 AND provider_vpc_id=$3`,
		string(provider), accountID, providerVPCID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrVPCNotFound
		}
		return nil, fmt.Errorf("get vpc by provider key: %w", err)
	}
	return vpc, nil
}

func (r *Repository) listVPCs(ctx context.Context, query string, args ...any) ([]*ipam.VPC, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vpcs: %w", err)
	}
	defer rows.Close()

	var out []*ipam.VPC
	for rows.Next() {
		vpc, err := scanVPC(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vpc: %w", err)
		}
		out = append(out, vpc)
	}
	return out, rows.Err()
}

func (r *Repository) ListVPCs(ctx context.Context) ([]*ipam.VPC, error) {
	return r.listVPCs(ctx, `SELECT `+vpcColumns+` FROM vpcs ORDER BY id`)
}

func (r *Repository) ListVPCsByProvider(ctx context.Context, provider ipam.Provider) ([]*ipam.VPC, error) {
	return r.listVPCs(ctx,
		`SELECT `+vpcColumns+` FROM vpcs WHERE provider=$1 ORDER BY id`, string(provider))
}

func (r *Repository) UpdateVPC(ctx context.Context, vpc *ipam.VPC) error {
	tags, err := encodeTags(vpc.Tags)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE vpcs SET description=$2,region=$3,tags=$4 WHERE id=$1`,
		vpc.ID, vpc.Description, vpc.Region, tags)
	if err != nil {
		return fmt.Errorf("update vpc: %w", err)
	}
	return requireRow(res, ipam.ErrVPCNotFound)
}

func (r *Repository) DeleteVPC(ctx context.Context, vpcID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vpcs WHERE id=$1`, vpcID)
	if err != nil {
		return fmt.Errorf("delete vpc: %w", err)
	}
	return requireRow(res, ipam.ErrVPCNotFound)
}

// Prefix operations

const prefixColumns = `id,vrf_id,cidr,tags,indentation_level,parent_prefix_id,source,routable,vpc_children_type,vpc_id,created_at,updated_at`

const qualifiedPrefixColumns = `p.id,p.vrf_id,p.cidr,p.tags,p.indentation_level,p.parent_prefix_id,p.source,p.routable,p.vpc_children_type,p.vpc_id,p.created_at,p.updated_at`

func scanPrefix(row interface{ Scan(...any) error }) (*ipam.Prefix, error) {
	var p ipam.Prefix
	var cidr, source string
	var parentID, vpcID sql.NullString
	var tags []byte
	err := row.Scan(&p.ID, &p.VRFID, &cidr, &tags, &p.IndentationLevel, &parentID, &source, &p.Routable, &p.VPCChildrenType, &vpcID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.CIDR, err = netip.ParsePrefix(cidr); err != nil {
		return nil, fmt.Errorf("stored CIDR %q: %w", cidr, err)
	}
	p.Source = ipam.Source(source)
	p.ParentPrefixID = parentID.String
	p.VPCID = vpcID.String
	if p.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) CreatePrefix(ctx context.Context, p *ipam.Prefix) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO prefixes (id,vrf_id,cidr,tags,indentation_level,parent_prefix_id,source,routable,vpc_children_type,vpc_id,created_at,updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.VRFID, p.CIDR.String(), tags, p.IndentationLevel, nullable(p.ParentPrefixID),
		string(p.Source), p.Routable, p.VPCChildrenType, nullable(p.VPCID), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ipam.ErrDuplicateCIDR
		}
		return fmt.Errorf("create prefix: %w", err)
	}
	return nil
}

func (r *Repository) GetPrefix(ctx context.Context, prefixID string) (*ipam.Prefix, error) {
	p, err := scanPrefix(r.db.QueryRowContext(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE id=$1`, prefixID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrPrefixNotFound
		}
		return nil, fmt.Errorf("get prefix: %w", err)
	}
	return p, nil
}

func (r *Repository) GetPrefixByCIDR(ctx context.Context, vrfID string, cidr netip.Prefix) (*ipam.Prefix, error) {
	p, err := scanPrefix(r.db.QueryRowContext(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE vrf_id=$1 AND cidr=$2`, vrfID, cidr.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrPrefixNotFound
		}
		return nil, fmt.Errorf("get prefix by cidr: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdatePrefix(ctx context.Context, p *ipam.Prefix) error {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE prefixes SET tags=$2,indentation_level=$3,parent_prefix_id=$4,routable=$5,vpc_children_type=$6,updated_at=$7 WHERE id=$1`,
		p.ID, tags, p.IndentationLevel, nullable(p.ParentPrefixID), p.Routable, p.VPCChildrenType, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prefix: %w", err)
	}
	return requireRow(res, ipam.ErrPrefixNotFound)
}

func (r *Repository) DeletePrefix(ctx context.Context, prefixID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM prefixes WHERE id=$1`, prefixID)
	if err != nil {
		return fmt.Errorf("delete prefix: %w", err)
	}
	return requireRow(res, ipam.ErrPrefixNotFound)
}

func (r *Repository) listPrefixes(ctx context.Context, query string, args ...any) ([]*ipam.Prefix, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prefixes: %w", err)
	}
	defer rows.Close()

	var out []*ipam.Prefix
	for rows.Next() {
		p, err := scanPrefix(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prefix: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// text ordering of CIDR columns is not address ordering
	sortByAddr(out)
	return out, nil
}

func (r *Repository) ListChildren(ctx context.Context, parentPrefixID string) ([]*ipam.Prefix, error) {
	return r.listPrefixes(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE parent_prefix_id=$1`, parentPrefixID)
}

func (r *Repository) ListRootPrefixes(ctx context.Context, vrfID string) ([]*ipam.Prefix, error) {
	return r.listPrefixes(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE vrf_id=$1 AND parent_prefix_id IS NULL`, vrfID)
}

func (r *Repository) ListPrefixes(ctx context.Context, filter ipam.PrefixFilter) ([]*ipam.Prefix, error) {
	query := `SELECT ` + qualifiedPrefixColumns + ` FROM prefixes p`
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Provider != "" || filter.ProviderAccountID != "" {
		query += ` JOIN vpcs v ON v.id = p.vpc_id`
		if filter.Provider != "" {
			where = append(where, `v.provider = `+arg(string(filter.Provider)))
		}
		if filter.ProviderAccountID != "" {
			where = append(where, `v.provider_account_id = `+arg(filter.ProviderAccountID))
		}
	}
	if filter.VRFID != "" {
		where = append(where, `p.vrf_id = `+arg(filter.VRFID))
	}
	if filter.Routable != nil {
		where = append(where, `p.routable = `+arg(*filter.Routable))
	}
	if filter.Source != "" {
		where = append(where, `p.source = `+arg(string(filter.Source)))
	}
	for i, clause := range where {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	return r.listPrefixes(ctx, query, args...)
}

func (r *Repository) ListVPCSubnets(ctx context.Context, vpcID string) ([]*ipam.Prefix, error) {
	return r.listPrefixes(ctx,
		`SELECT `+prefixColumns+` FROM prefixes WHERE vpc_id=$1 AND source='vpc'`, vpcID)
}

func (r *Repository) CountPrefixesByVRF(ctx context.Context, vrfID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prefixes WHERE vrf_id=$1`, vrfID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count prefixes: %w", err)
	}
	return count, nil
}

// Association operations

func (r *Repository) CreateAssociation(ctx context.Context, assoc *ipam.VPCPrefixAssociation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vpc_prefix_associations (id,vpc_id,vpc_prefix_cidr,routable,parent_prefix_id)
		 VALUES ($1,$2,$3,$4,$5)`,
		assoc.ID, assoc.VPCID, assoc.VPCPrefixCIDR.String(), assoc.Routable, assoc.ParentPrefixID)
	if err != nil {
		if isUniqueViolation(err) {
			return ipam.ErrDuplicateAssociation
		}
		return fmt.Errorf("create association: %w", err)
	}
	return nil
}

func scanAssociation(row interface{ Scan(...any) error }) (*ipam.VPCPrefixAssociation, error) {
	var a ipam.VPCPrefixAssociation
	var cidr string
	if err := row.Scan(&a.ID, &a.VPCID, &cidr, &a.Routable, &a.ParentPrefixID); err != nil {
		return nil, err
	}
	var err error
	if a.VPCPrefixCIDR, err = netip.ParsePrefix(cidr); err != nil {
		return nil, fmt.Errorf("stored CIDR %q: %w", cidr, err)
	}
	return &a, nil
}

func (r *Repository) GetAssociation(ctx context.Context, associationID string) (*ipam.VPCPrefixAssociation, error) {
	a, err := scanAssociation(r.db.QueryRowContext(ctx,
		`SELECT id,vpc_id,vpc_prefix_cidr,routable,parent_prefix_id FROM vpc_prefix_associations WHERE id=$1`,
		associationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ipam.ErrAssociationNotFound
		}
		return nil, fmt.Errorf("get association: %w", err)
	}
	return a, nil
}

func (r *Repository) listAssociations(ctx context.Context, query string, args ...any) ([]*ipam.VPCPrefixAssociation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	defer rows.Close()

	var out []*ipam.VPCPrefixAssociation
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan association: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ListAssociationsByVPC(ctx context.Context, vpcID string) ([]*ipam.VPCPrefixAssociation, error) {
	return r.listAssociations(ctx,
		`SELECT id,vpc_id,vpc_prefix_cidr,routable,parent_prefix_id FROM vpc_prefix_associations WHERE vpc_id=$1 ORDER BY id`,
		vpcID)
}

func (r *Repository) ListAssociationsByPrefix(ctx context.Context, parentPrefixID string) ([]*ipam.VPCPrefixAssociation, error) {
	return r.listAssociations(ctx,
		`SELECT id,vpc_id,vpc_prefix_cidr,routable,parent_prefix_id FROM vpc_prefix_associations WHERE parent_prefix_id=$1 ORDER BY id`,
		parentPrefixID)
}

func (r *Repository) DeleteAssociation(ctx context.Context, associationID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vpc_prefix_associations WHERE id=$1`, associationID)
	if err != nil {
		return fmt.Errorf("delete association: %w", err)
	}
	return requireRow(res, ipam.ErrAssociationNotFound)
}

// Idempotency operations

func (r *Repository) CreateIdempotencyRecord(ctx context.Context, rec *ipam.IdempotencyRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_records (request_id,endpoint,method,request_hash,request_params,response_data,status_code,created_at,expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.RequestID, rec.Endpoint, rec.Method, rec.RequestHash,
		[]byte(rec.RequestParams), []byte(rec.ResponseData), rec.StatusCode, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ipam.ErrDuplicateRequestID
		}
		return fmt.Errorf("create idempotency record: %w", err)
	}
	return nil
}

func (r *Repository) GetIdempotencyRecord(ctx context.Context, requestID string) (*ipam.IdempotencyRecord, error) {
	var rec ipam.IdempotencyRecord
	var params, response []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT request_id,endpoint,method,request_hash,request_params,response_data,status_code,created_at,expires_at
		 FROM idempotency_records WHERE request_id=$1`, requestID).
		Scan(&rec.RequestID, &rec.Endpoint, &rec.Method, &rec.RequestHash, &params, &response, &rec.StatusCode, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.RequestParams = json.RawMessage(params)
	rec.ResponseData = json.RawMessage(response)
	return &rec, nil
}

func (r *Repository) CountIdempotencyRecords(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count idempotency records: %w", err)
	}
	return count, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Ensure interface compliance
var _ ipam.Repository = (*Repository)(nil)
