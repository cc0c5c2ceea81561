package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/rs/zerolog"
)

type fakeEC2 struct {
	ec2iface.EC2API
	describeVpcsErr error
	pages           []*ec2.DescribeSubnetsOutput
	gotInput        *ec2.DescribeSubnetsInput
}

func (f *fakeEC2) DescribeVpcsWithContext(ctx aws.Context, input *ec2.DescribeVpcsInput, opts ...request.Option) (*ec2.DescribeVpcsOutput, error) {
	if f.describeVpcsErr != nil {
		return nil, f.describeVpcsErr
	}
	return &ec2.DescribeVpcsOutput{}, nil
}

func (f *fakeEC2) DescribeSubnetsPagesWithContext(ctx aws.Context, input *ec2.DescribeSubnetsInput, fn func(*ec2.DescribeSubnetsOutput, bool) bool, opts ...request.Option) error {
	f.gotInput = input
	for i, page := range f.pages {
		if !fn(page, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func TestReachable(t *testing.T) {
	fake := &fakeEC2{}
	client := NewClient(fake, zerolog.Nop(), 100)
	if err := client.Reachable(context.Background()); err != nil {
		t.Errorf("Reachable: %v", err)
	}

	fake.describeVpcsErr = errors.New("no credentials")
	if err := client.Reachable(context.Background()); err == nil {
		t.Error("Reachable should propagate API errors")
	}
}

func TestListSubnets(t *testing.T) {
	fake := &fakeEC2{
		pages: []*ec2.DescribeSubnetsOutput{
			{
				Subnets: []*ec2.Subnet{
					{
						SubnetId:         aws.String("subnet-1"),
						CidrBlock:        aws.String("10.0.1.0/24"),
						AvailabilityZone: aws.String("eu-west-1a"),
						State:            aws.String("available"),
						Ipv6CidrBlockAssociationSet: []*ec2.SubnetIpv6CidrBlockAssociation{
							{
								Ipv6CidrBlock:      aws.String("2001:db8:0:1::/64"),
								Ipv6CidrBlockState: &ec2.SubnetCidrBlockState{State: aws.String(ec2.SubnetCidrBlockStateCodeAssociated)},
							},
							{
								Ipv6CidrBlock:      aws.String("2001:db8:0:2::/64"),
								Ipv6CidrBlockState: &ec2.SubnetCidrBlockState{State: aws.String(ec2.SubnetCidrBlockStateCodeDisassociated)},
							},
						},
					},
				},
			},
			{
				Subnets: []*ec2.Subnet{
					{
						SubnetId:  aws.String("subnet-2"),
						CidrBlock: aws.String("10.0.2.0/24"),
						State:     aws.String("pending"),
					},
				},
			},
		},
	}
	client := NewClient(fake, zerolog.Nop(), 100)

	records, err := client.ListSubnets(context.Background(), "vpc-abc")
	if err != nil {
		t.Fatalf("ListSubnets: %v", err)
	}
	// subnet-1 IPv4 + associated IPv6, subnet-2 IPv4; disassociated block skipped
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].CIDR.String() != "10.0.1.0/24" || records[0].SubnetID != "subnet-1" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].CIDR.String() != "2001:db8:0:1::/64" {
		t.Errorf("records[1] = %+v", records[1])
	}
	if records[2].SubnetID != "subnet-2" || records[2].State != "pending" {
		t.Errorf("records[2] = %+v", records[2])
	}

	if got := aws.StringValue(fake.gotInput.Filters[0].Values[0]); got != "vpc-abc" {
		t.Errorf("vpc filter = %s", got)
	}
	if aws.Int64Value(fake.gotInput.MaxResults) != 100 {
		t.Errorf("page size = %d", aws.Int64Value(fake.gotInput.MaxResults))
	}
}

func TestNewClient_ClampsPageSize(t *testing.T) {
	client := NewClient(&fakeEC2{}, zerolog.Nop(), 3)
	if client.pageSize != 100 {
		t.Errorf("pageSize = %d, want 100", client.pageSize)
	}
}
