package aws

import (
	"context"
	"fmt"
	"net/netip"

	appsync "cloudipam/internal/application/sync"
	"cloudipam/internal/domain/ipam"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/rs/zerolog"
)

// Client reads VPC subnet state from the EC2 API. It implements
// sync.CloudSource; tests substitute a fake ec2iface.EC2API.
type Client struct {
	api      ec2iface.EC2API
	log      zerolog.Logger
	pageSize int64
}

// NewClient wraps an EC2 API handle.
func NewClient(api ec2iface.EC2API, log zerolog.Logger, pageSize int) *Client {
	if pageSize < 5 || pageSize > 1000 {
		// DescribeSubnets accepts MaxResults between 5 and 1000
		pageSize = 100
	}
	return &Client{api: api, log: log, pageSize: int64(pageSize)}
}

// NewClientFromSession builds a client against the real EC2 endpoint using
// the default credential chain.
func NewClientFromSession(region string, log zerolog.Logger, pageSize int) (*Client, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *aws.NewConfig().WithRegion(region),
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewClient(ec2.New(sess), log, pageSize), nil
}

// Provider returns the provider this source reads from.
func (c *Client) Provider() ipam.Provider {
	return ipam.ProviderAWS
}

// Reachable probes the EC2 API with a minimal DescribeVpcs call.
func (c *Client) Reachable(ctx context.Context) error {
	_, err := c.api.DescribeVpcsWithContext(ctx, &ec2.DescribeVpcsInput{
		MaxResults: aws.Int64(5),
	})
	if err != nil {
		return fmt.Errorf("EC2 API probe failed: %w", err)
	}
	return nil
}

// ListSubnets returns every subnet of the given VPC, one record per CIDR
// block. A subnet with associated IPv6 blocks yields one record per block in
// addition to its IPv4 record.
func (c *Client) ListSubnets(ctx context.Context, providerVPCID string) ([]appsync.SubnetRecord, error) {
	input := &ec2.DescribeSubnetsInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("vpc-id"),
				Values: []*string{aws.String(providerVPCID)},
			},
		},
		MaxResults: aws.Int64(c.pageSize),
	}

	var records []appsync.SubnetRecord
	err := c.api.DescribeSubnetsPagesWithContext(ctx, input,
		func(page *ec2.DescribeSubnetsOutput, _ bool) bool {
			for _, subnet := range page.Subnets {
				records = append(records, c.subnetRecords(subnet)...)
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to describe subnets of %s: %w", providerVPCID, err)
	}
	return records, nil
}

func (c *Client) subnetRecords(subnet *ec2.Subnet) []appsync.SubnetRecord {
	base := appsync.SubnetRecord{
		SubnetID:         aws.StringValue(subnet.SubnetId),
		AvailabilityZone: aws.StringValue(subnet.AvailabilityZone),
		State:            aws.StringValue(subnet.State),
	}

	var out []appsync.SubnetRecord
	if v4 := aws.StringValue(subnet.CidrBlock); v4 != "" {
		cidr, err := netip.ParsePrefix(v4)
		if err != nil {
			c.log.Warn().Str("subnet_id", base.SubnetID).Str("cidr", v4).Msg("skipping unparsable CIDR block")
		} else {
			rec := base
			rec.CIDR = cidr.Masked()
			out = append(out, rec)
		}
	}
	for _, assoc := range subnet.Ipv6CidrBlockAssociationSet {
		state := ""
		if assoc.Ipv6CidrBlockState != nil {
			state = aws.StringValue(assoc.Ipv6CidrBlockState.State)
		}
		if state != ec2.SubnetCidrBlockStateCodeAssociated {
			continue
		}
		v6 := aws.StringValue(assoc.Ipv6CidrBlock)
		cidr, err := netip.ParsePrefix(v6)
		if err != nil {
			c.log.Warn().Str("subnet_id", base.SubnetID).Str("cidr", v6).Msg("skipping unparsable IPv6 block")
			continue
		}
		rec := base
		rec.CIDR = cidr.Masked()
		out = append(out, rec)
	}
	return out
}

// Ensure interface compliance
var _ appsync.CloudSource = (*Client)(nil)
