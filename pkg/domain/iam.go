package domain

import "time"

const (
	// DefaultSessionDuration is applied when the config omits
	// session_duration.
	DefaultSessionDuration = 3600

	// MinSessionDuration is the shortest role session STS supports.
	MinSessionDuration = 900
)

// IAMConfig is the per-database IAM authentication block read out of
// the encrypted extra blob under the "aws_iam" key.
type IAMConfig struct {
	Enabled         bool   `json:"enabled"`
	RoleARN         string `json:"role_arn,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	Region          string `json:"region,omitempty"`
	DBUsername      string `json:"db_username,omitempty"`
	SessionDuration int    `json:"session_duration,omitempty"`

	// Redshift Serverless only.
	WorkgroupName string `json:"workgroup_name,omitempty"`

	// Redshift provisioned only.
	ClusterIdentifier string `json:"cluster_identifier,omitempty"`

	// Redshift (both deployments).
	DBName string `json:"db_name,omitempty"`
}

// SessionDurationOrDefault returns the configured session duration in
// seconds, falling back to DefaultSessionDuration.
func (c IAMConfig) SessionDurationOrDefault() int {
	if c.SessionDuration > 0 {
		return c.SessionDuration
	}
	return DefaultSessionDuration
}

// STSCredential is an immutable role-assumption result.
type STSCredential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}
