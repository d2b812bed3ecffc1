package awsauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/domain"
)

const (
	// DefaultCacheTTL must stay strictly below MinSessionDuration so a
	// cached entry can never outlive the shortest role session.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultCacheMaxEntries bounds the process-wide cache.
	DefaultCacheMaxEntries = 128
)

// CacheKey identifies one role assumption target. Distinct keys hold
// independent credentials.
type CacheKey struct {
	RoleARN    string
	Region     string
	ExternalID string
}

type cacheEntry struct {
	cred      domain.STSCredential
	expiresAt time.Time
}

// CredentialCache is a process-wide, TTL-bounded cache of role
// assumption results. Lookups hold the lock; the STS call itself runs
// outside it, so two concurrent misses on the same key may both call
// the cloud and the last writer wins.
type CredentialCache struct {
	mu         sync.Mutex
	entries    map[CacheKey]cacheEntry
	maxEntries int
	ttl        time.Duration
	sts        STSClient
	now        func() time.Time
}

type CacheOption func(*CredentialCache)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CredentialCache) {
		if ttl > 0 && ttl < domain.MinSessionDuration*time.Second {
			c.ttl = ttl
		}
	}
}

func WithCacheMaxEntries(n int) CacheOption {
	return func(c *CredentialCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CredentialCache) {
		c.now = now
	}
}

func NewCredentialCache(sts STSClient, opts ...CacheOption) *CredentialCache {
	c := &CredentialCache{
		entries:    map[CacheKey]cacheEntry{},
		maxEntries: DefaultCacheMaxEntries,
		ttl:        DefaultCacheTTL,
		sts:        sts,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrAssume returns the cached credential for key when present and
// unexpired, otherwise assumes the role and caches the result. The
// entry TTL is the smaller of the cache TTL and the session duration.
func (c *CredentialCache) GetOrAssume(ctx context.Context, key CacheKey, sessionDuration int) (domain.STSCredential, error) {
	if sessionDuration <= 0 {
		sessionDuration = domain.DefaultSessionDuration
	}

	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.cred, nil
	}
	c.mu.Unlock()

	log.Debug().
		Str("role_arn", key.RoleARN).
		Str("region", key.Region).
		Msg("Assuming IAM role")

	cred, err := c.sts.AssumeRole(ctx, AssumeRoleInput{
		RoleARN:         key.RoleARN,
		Region:          key.Region,
		ExternalID:      key.ExternalID,
		DurationSeconds: sessionDuration,
	})
	if err != nil {
		return domain.STSCredential{}, mapAssumeRoleError(err)
	}

	ttl := c.ttl
	if d := time.Duration(sessionDuration) * time.Second; d < ttl {
		ttl = d
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.evictStalestLocked()
	}
	c.entries[key] = cacheEntry{cred: cred, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	return cred, nil
}

// Reset drops all cached entries. Intended for tests and credential
// rotation.
func (c *CredentialCache) Reset() {
	c.mu.Lock()
	c.entries = map[CacheKey]cacheEntry{}
	c.mu.Unlock()
}

// Len returns the current entry count.
func (c *CredentialCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CredentialCache) evictStalestLocked() {
	var (
		stalest   CacheKey
		earliest  time.Time
		haveEntry bool
	)
	for k, e := range c.entries {
		if !haveEntry || e.expiresAt.Before(earliest) {
			stalest = k
			earliest = e.expiresAt
			haveEntry = true
		}
	}
	if haveEntry {
		delete(c.entries, stalest)
	}
}

// mapAssumeRoleError turns SDK failures into structured engine errors.
// The provider reports external-ID mismatches as AccessDenied, so that
// detail is checked before the generic denial.
func mapAssumeRoleError(err error) error {
	if _, ok := domain.AsEngineError(err); ok {
		return err
	}

	ae, ok := err.(awserr.Error)
	if !ok {
		return domain.WrapEngineError(domain.ErrorCodeGenericDBEngine,
			"Unable to assume IAM role", err)
	}

	switch ae.Code() {
	case "AccessDenied", "AccessDeniedException":
		if strings.Contains(strings.ToLower(ae.Message()), "external id") {
			return domain.WrapEngineError(domain.ErrorCodeAccessDenied,
				"External ID mismatch: the configured external_id was rejected by the role trust policy", err)
		}
		return domain.WrapEngineError(domain.ErrorCodeAccessDenied,
			"Unable to assume IAM role: verify the role ARN and trust policy", err)
	case "MalformedPolicyDocument", "ValidationError":
		return domain.WrapEngineError(domain.ErrorCodeMissingParameters,
			"Unable to assume IAM role: invalid role ARN", err)
	case "ExpiredToken", "ExpiredTokenException":
		return domain.WrapEngineError(domain.ErrorCodeAccessDenied,
			"Unable to assume IAM role: caller credentials expired", err)
	case "InvalidClientTokenId":
		return domain.WrapEngineError(domain.ErrorCodeAccessDenied,
			"Unable to assume IAM role: caller lacks permission to assume the role", err)
	default:
		return domain.WrapEngineError(domain.ErrorCodeAccessDenied,
			"Unable to assume IAM role: verify the role ARN and trust policy", err)
	}
}
