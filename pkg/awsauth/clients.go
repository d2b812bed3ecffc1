// Package awsauth implements cross-account IAM authentication for
// database connections: role assumption with a shared credential cache,
// RDS IAM auth tokens and Redshift credential minting, and the
// encrypted-extra binding that carries the per-database configuration.
package awsauth

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/rds/rdsutils"
	"github.com/aws/aws-sdk-go/service/redshift"
	"github.com/aws/aws-sdk-go/service/redshiftserverless"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/snapgate/snapgate/pkg/domain"
)

// RoleSessionName is the session name presented on every AssumeRole
// call, matching what operators see in CloudTrail.
const RoleSessionName = "superset-iam-session"

type AssumeRoleInput struct {
	RoleARN         string
	Region          string
	ExternalID      string
	DurationSeconds int
}

// STSClient assumes a cross-account role and returns the temporary
// credentials.
type STSClient interface {
	AssumeRole(ctx context.Context, in AssumeRoleInput) (domain.STSCredential, error)
}

// RDSTokenClient mints an RDS IAM auth token for endpoint "host:port"
// using the assumed credentials. The token format is AWS's, not ours.
type RDSTokenClient interface {
	BuildAuthToken(ctx context.Context, endpoint, region, dbUser string, cred domain.STSCredential) (string, error)
}

// RedshiftServerlessClient mints database credentials for a serverless
// workgroup.
type RedshiftServerlessClient interface {
	GetCredentials(ctx context.Context, region, workgroupName, dbName string, cred domain.STSCredential) (user, password string, err error)
}

// RedshiftClient mints database credentials for a provisioned cluster.
type RedshiftClient interface {
	GetClusterCredentials(ctx context.Context, region, clusterIdentifier, dbUser, dbName string, autoCreate bool, cred domain.STSCredential) (user, password string, err error)
}

// Clients bundles the cloud clients the engine depends on.
type Clients struct {
	STS                STSClient
	RDS                RDSTokenClient
	RedshiftServerless RedshiftServerlessClient
	Redshift           RedshiftClient
}

// NewSDKClients returns aws-sdk-go backed clients. Sessions are built
// per call so a misconfigured SDK environment surfaces as a structured
// error on use rather than at startup.
func NewSDKClients() Clients {
	return Clients{
		STS:                sdkSTSClient{},
		RDS:                sdkRDSClient{},
		RedshiftServerless: sdkRedshiftServerlessClient{},
		Redshift:           sdkRedshiftClient{},
	}
}

const sdkUnavailableMsg = "AWS SDK session could not be initialized; " +
	"verify the aws-sdk-go credential chain (environment, shared config, or instance profile) is available"

func newSession(region string) (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrorCodeGenericDBEngine, sdkUnavailableMsg, err)
	}
	return sess, nil
}

func newAssumedSession(region string, cred domain.STSCredential) (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(cred.AccessKeyID, cred.SecretAccessKey, cred.SessionToken),
	})
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrorCodeGenericDBEngine, sdkUnavailableMsg, err)
	}
	return sess, nil
}

type sdkSTSClient struct{}

func (sdkSTSClient) AssumeRole(ctx context.Context, in AssumeRoleInput) (domain.STSCredential, error) {
	sess, err := newSession(in.Region)
	if err != nil {
		return domain.STSCredential{}, err
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(in.RoleARN),
		RoleSessionName: aws.String(RoleSessionName),
		DurationSeconds: aws.Int64(int64(in.DurationSeconds)),
	}
	if in.ExternalID != "" {
		input.ExternalId = aws.String(in.ExternalID)
	}

	out, err := sts.New(sess).AssumeRoleWithContext(ctx, input)
	if err != nil {
		return domain.STSCredential{}, err
	}

	c := out.Credentials
	return domain.STSCredential{
		AccessKeyID:     aws.StringValue(c.AccessKeyId),
		SecretAccessKey: aws.StringValue(c.SecretAccessKey),
		SessionToken:    aws.StringValue(c.SessionToken),
		Expiration:      aws.TimeValue(c.Expiration),
	}, nil
}

type sdkRDSClient struct{}

func (sdkRDSClient) BuildAuthToken(ctx context.Context, endpoint, region, dbUser string, cred domain.STSCredential) (string, error) {
	creds := credentials.NewStaticCredentials(cred.AccessKeyID, cred.SecretAccessKey, cred.SessionToken)
	return rdsutils.BuildAuthToken(endpoint, region, dbUser, creds)
}

type sdkRedshiftServerlessClient struct{}

func (sdkRedshiftServerlessClient) GetCredentials(ctx context.Context, region, workgroupName, dbName string, cred domain.STSCredential) (string, string, error) {
	sess, err := newAssumedSession(region, cred)
	if err != nil {
		return "", "", err
	}

	out, err := redshiftserverless.New(sess).GetCredentialsWithContext(ctx, &redshiftserverless.GetCredentialsInput{
		WorkgroupName: aws.String(workgroupName),
		DbName:        aws.String(dbName),
	})
	if err != nil {
		return "", "", err
	}

	return aws.StringValue(out.DbUser), aws.StringValue(out.DbPassword), nil
}

type sdkRedshiftClient struct{}

func (sdkRedshiftClient) GetClusterCredentials(ctx context.Context, region, clusterIdentifier, dbUser, dbName string, autoCreate bool, cred domain.STSCredential) (string, string, error) {
	sess, err := newAssumedSession(region, cred)
	if err != nil {
		return "", "", err
	}

	out, err := redshift.New(sess).GetClusterCredentialsWithContext(ctx, &redshift.GetClusterCredentialsInput{
		ClusterIdentifier: aws.String(clusterIdentifier),
		DbUser:            aws.String(dbUser),
		DbName:            aws.String(dbName),
		AutoCreate:        aws.Bool(autoCreate),
	})
	if err != nil {
		return "", "", err
	}

	return aws.StringValue(out.DbUser), aws.StringValue(out.DbPassword), nil
}
