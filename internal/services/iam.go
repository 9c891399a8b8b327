// Package services wraps the AWS service calls behind small interfaces so
// the provisioning logic can be tested with fakes.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/rs/zerolog"
)

const (
	adminPolicyArn       = "arn:aws:iam::aws:policy/AdministratorAccess"
	ssmReadOnlyPolicyArn = "arn:aws:iam::aws:policy/AmazonSSMReadOnlyAccess"
)

// codeBuildTrustPolicy lets the CodeBuild service assume the role.
const codeBuildTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {
        "Service": "codebuild.amazonaws.com"
      },
      "Action": "sts:AssumeRole"
    }
  ]
}`

// IAMAPI is the subset of the IAM client the provisioner uses.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
}

// RoleProvisioner performs idempotent get-or-create of the CodeBuild service
// role. The role is never deleted by this system; destroy leaves it in place.
type RoleProvisioner struct {
	client       IAMAPI
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewRoleProvisioner(client IAMAPI) *RoleProvisioner {
	return &RoleProvisioner{
		client:       client,
		pollInterval: 2 * time.Second,
		maxWait:      30 * time.Second,
	}
}

// ServiceRoleName derives the deterministic role name for a project.
func ServiceRoleName(project string) string {
	return project + "-service-role"
}

// EnsureServiceRole looks the role up first and reuses it when present.
// Only a NoSuchEntity lookup result triggers creation; any other lookup
// failure (permission denied, transient network error) propagates instead of
// masquerading as "absent".
func (p *RoleProvisioner) EnsureServiceRole(ctx context.Context, project string) (string, error) {
	logger := zerolog.Ctx(ctx)
	roleName := ServiceRoleName(project)

	existing, err := p.client.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err == nil {
		logger.Info().Str("role_name", roleName).Msg("Service role already exists, reusing")
		return aws.ToString(existing.Role.Arn), nil
	}
	var notFound *iamtypes.NoSuchEntityException
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("failed to look up role %s: %w", roleName, err)
	}

	logger.Info().Str("role_name", roleName).Msg("Creating service role")
	created, err := p.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(codeBuildTrustPolicy),
		Description:              aws.String(fmt.Sprintf("CodeBuild service role for %s", project)),
		Tags: []iamtypes.Tag{
			{Key: aws.String("ManagedBy"), Value: aws.String("geopipeline")},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create role %s: %w", roleName, err)
	}

	for _, policyArn := range []string{adminPolicyArn, ssmReadOnlyPolicyArn} {
		_, err = p.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(roleName),
			PolicyArn: aws.String(policyArn),
		})
		if err != nil {
			return "", fmt.Errorf("failed to attach policy %s: %w", policyArn, err)
		}
	}

	// IAM is eventually consistent; poll until the role is readable rather
	// than sleeping a fixed duration and hoping.
	if err := p.waitForRole(ctx, roleName); err != nil {
		return "", err
	}

	return aws.ToString(created.Role.Arn), nil
}

func (p *RoleProvisioner) waitForRole(ctx context.Context, roleName string) error {
	logger := zerolog.Ctx(ctx)
	deadline := time.Now().Add(p.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		_, err := p.client.GetRole(ctx, &iam.GetRoleInput{
			RoleName: aws.String(roleName),
		})
		if err == nil {
			logger.Info().Int("attempts", attempt).Str("role_name", roleName).Msg("Role propagated")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}

	return fmt.Errorf("role %s did not become available within %v", roleName, p.maxWait)
}
