package domain

// FeatureAWSIAMDBAuth gates all IAM database authentication. Checked
// before any cloud call.
const FeatureAWSIAMDBAuth = "AWS_IAM_DB_AUTH"

type FeatureFlagManager interface {
	IsEnabled(flag string) bool
}

// StaticFeatureFlags is a map-backed FeatureFlagManager seeded from
// configuration. Missing flags read as disabled.
type StaticFeatureFlags map[string]bool

func (f StaticFeatureFlags) IsEnabled(flag string) bool {
	return f[flag]
}
