package awsauth

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/domain"
)

const (
	// DefaultRDSPort matches PostgreSQL; MySQL-family callers pass
	// their own via ApplyOptions.
	DefaultRDSPort = 5432

	sslModeKey      = "sslmode"
	sslModeRequire  = "require"
	sslModeVerifyCA = "verify-ca"
)

// ApplyOptions customizes ApplyRDSFamily for non-PostgreSQL engines.
type ApplyOptions struct {
	// SSLArgs fully replaces the default {"sslmode": "require"} entry
	// when non-nil.
	SSLArgs map[string]any

	// DefaultPort is used when the database URI carries no port.
	DefaultPort int
}

// Engine rewrites engine params with short-lived IAM-minted database
// credentials. All validation happens before any cloud call.
type Engine struct {
	cache   *CredentialCache
	clients Clients
	flags   domain.FeatureFlagManager
}

type EngineDependencies struct {
	Cache        *CredentialCache
	Clients      Clients
	FeatureFlags domain.FeatureFlagManager
}

func NewEngine(deps EngineDependencies) *Engine {
	return &Engine{
		cache:   deps.Cache,
		clients: deps.Clients,
		flags:   deps.FeatureFlags,
	}
}

// ApplyFromDatabase reads the aws_iam block out of the database's
// encrypted extra and dispatches to the engine family the URI scheme
// selects. Databases without an aws_iam block pass through untouched.
func (e *Engine) ApplyFromDatabase(ctx context.Context, db domain.Database, params domain.EngineParams, opts *ApplyOptions) error {
	cfg, ok, err := ParseIAMConfig(db.EncryptedExtra)
	if err != nil {
		return domain.WrapEngineError(domain.ErrorCodeMissingParameters,
			"could not read IAM configuration from encrypted extra", err)
	}
	if !ok {
		return nil
	}

	if isRedshiftURI(db.URI) {
		return e.ApplyRedshift(ctx, db, params, cfg)
	}
	return e.ApplyRDSFamily(ctx, db, params, cfg, opts)
}

// isRedshiftURI matches redshift drivers, e.g. redshift+psycopg2://.
func isRedshiftURI(uri string) bool {
	scheme, _, found := strings.Cut(uri, "://")
	return found && strings.HasPrefix(strings.ToLower(scheme), "redshift")
}

// ApplyRDSFamily mints an RDS IAM auth token and injects it into
// params.connect_args for PostgreSQL/MySQL-family databases.
func (e *Engine) ApplyRDSFamily(ctx context.Context, db domain.Database, params domain.EngineParams, cfg domain.IAMConfig, opts *ApplyOptions) error {
	if !cfg.Enabled {
		return nil
	}
	if err := e.checkFeatureFlag(); err != nil {
		return err
	}
	if err := requireFields(map[string]string{
		"role_arn":    cfg.RoleARN,
		"region":      cfg.Region,
		"db_username": cfg.DBUsername,
	}); err != nil {
		return err
	}

	defaultPort := DefaultRDSPort
	var sslArgs map[string]any
	if opts != nil {
		if opts.DefaultPort > 0 {
			defaultPort = opts.DefaultPort
		}
		sslArgs = opts.SSLArgs
	}

	hostname, port, err := parseEndpoint(db.URI, defaultPort)
	if err != nil {
		return err
	}

	cred, err := e.cache.GetOrAssume(ctx, CacheKey{
		RoleARN:    cfg.RoleARN,
		Region:     cfg.Region,
		ExternalID: cfg.ExternalID,
	}, cfg.SessionDurationOrDefault())
	if err != nil {
		return err
	}

	endpoint := net.JoinHostPort(hostname, strconv.Itoa(port))
	token, err := e.clients.RDS.BuildAuthToken(ctx, endpoint, cfg.Region, cfg.DBUsername, cred)
	if err != nil {
		return domain.WrapEngineError(domain.ErrorCodeGenericDBEngine,
			"Unable to generate RDS IAM auth token", err)
	}

	ca := params.ConnectArgs()
	ca["user"] = cfg.DBUsername
	ca["password"] = token
	if sslArgs == nil {
		sslArgs = map[string]any{sslModeKey: sslModeRequire}
	}
	for k, v := range sslArgs {
		ca[k] = v
	}

	log.Debug().
		Str("database", db.Name).
		Str("region", cfg.Region).
		Msg("Applied RDS IAM authentication")

	return nil
}

// ApplyRedshift mints Redshift database credentials (Serverless via the
// workgroup, provisioned via the cluster) and injects them into
// params.connect_args with verify-ca SSL.
func (e *Engine) ApplyRedshift(ctx context.Context, db domain.Database, params domain.EngineParams, cfg domain.IAMConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if err := e.checkFeatureFlag(); err != nil {
		return err
	}
	if err := requireFields(map[string]string{
		"role_arn": cfg.RoleARN,
		"region":   cfg.Region,
		"db_name":  cfg.DBName,
	}); err != nil {
		return err
	}

	serverless := cfg.WorkgroupName != ""
	provisioned := cfg.ClusterIdentifier != ""
	switch {
	case serverless && provisioned:
		return domain.NewEngineError(domain.ErrorCodeMissingParameters,
			"workgroup_name and cluster_identifier are mutually exclusive; set exactly one")
	case !serverless && !provisioned:
		return domain.NewEngineError(domain.ErrorCodeMissingParameters,
			"missing required IAM parameter: workgroup_name (Serverless) or cluster_identifier (provisioned)")
	}
	if provisioned && cfg.DBUsername == "" {
		return domain.NewEngineError(domain.ErrorCodeMissingParameters,
			"missing required IAM parameter: db_username")
	}

	cred, err := e.cache.GetOrAssume(ctx, CacheKey{
		RoleARN:    cfg.RoleARN,
		Region:     cfg.Region,
		ExternalID: cfg.ExternalID,
	}, cfg.SessionDurationOrDefault())
	if err != nil {
		return err
	}

	var user, password string
	if serverless {
		user, password, err = e.clients.RedshiftServerless.GetCredentials(ctx, cfg.Region, cfg.WorkgroupName, cfg.DBName, cred)
	} else {
		// auto_create is pinned false: the IAM role decides which
		// database users exist, not this module.
		user, password, err = e.clients.Redshift.GetClusterCredentials(ctx, cfg.Region, cfg.ClusterIdentifier, cfg.DBUsername, cfg.DBName, false, cred)
	}
	if err != nil {
		return domain.WrapEngineError(domain.ErrorCodeGenericDBEngine,
			"Failed to get Redshift credentials", err)
	}

	ca := params.ConnectArgs()
	ca["user"] = user
	ca["password"] = password
	ca[sslModeKey] = sslModeVerifyCA

	log.Debug().
		Str("database", db.Name).
		Str("region", cfg.Region).
		Bool("serverless", serverless).
		Msg("Applied Redshift IAM authentication")

	return nil
}

func (e *Engine) checkFeatureFlag() error {
	if e.flags == nil || !e.flags.IsEnabled(domain.FeatureAWSIAMDBAuth) {
		return domain.NewEngineError(domain.ErrorCodeAccessDenied,
			"IAM database authentication is not enabled for this deployment")
	}
	return nil
}

func requireFields(fields map[string]string) error {
	// Fixed order so the first reported field is deterministic.
	for _, name := range []string{"role_arn", "region", "db_username", "db_name"} {
		if value, checked := fields[name]; checked && value == "" {
			return domain.NewEngineError(domain.ErrorCodeMissingParameters,
				fmt.Sprintf("missing required IAM parameter: %s", name))
		}
	}
	return nil
}

func parseEndpoint(uri string, defaultPort int) (string, int, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", 0, domain.WrapEngineError(domain.ErrorCodeMissingParameters,
			"could not parse database URI", err)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", 0, domain.NewEngineError(domain.ErrorCodeMissingParameters,
			"database URI has no hostname")
	}

	port := defaultPort
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, domain.WrapEngineError(domain.ErrorCodeMissingParameters,
				"database URI has an invalid port", err)
		}
	}

	return hostname, port, nil
}
