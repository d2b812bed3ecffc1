package awsauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapgate/snapgate/pkg/domain"
)

type fakeSTS struct {
	mu      sync.Mutex
	calls   int
	inputs  []AssumeRoleInput
	cred    domain.STSCredential
	err     error
	barrier *sync.WaitGroup
}

func (f *fakeSTS) AssumeRole(ctx context.Context, in AssumeRoleInput) (domain.STSCredential, error) {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, in)
	n := f.calls
	f.mu.Unlock()

	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.err != nil {
		return domain.STSCredential{}, f.err
	}
	cred := f.cred
	if cred.AccessKeyID == "" {
		cred = domain.STSCredential{
			AccessKeyID:     fmt.Sprintf("ASIA%d", n),
			SecretAccessKey: "secret",
			SessionToken:    "token",
			Expiration:      time.Now().Add(time.Hour),
		}
	}
	return cred, nil
}

func (f *fakeSTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testKey(role string) CacheKey {
	return CacheKey{
		RoleARN: "arn:aws:iam::123456789012:role/" + role,
		Region:  "us-east-1",
	}
}

func TestCredentialCacheReturnsCachedEntryWithinTTL(t *testing.T) {
	sts := &fakeSTS{}
	clock := newFakeClock()
	cache := NewCredentialCache(sts, WithCacheClock(clock.Now))

	first, err := cache.GetOrAssume(context.Background(), testKey("CachedRole"), 3600)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	second, err := cache.GetOrAssume(context.Background(), testKey("CachedRole"), 3600)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, sts.callCount())
}

func TestCredentialCacheReassumesAfterTTL(t *testing.T) {
	sts := &fakeSTS{}
	clock := newFakeClock()
	cache := NewCredentialCache(sts, WithCacheClock(clock.Now))

	_, err := cache.GetOrAssume(context.Background(), testKey("Role"), 3600)
	require.NoError(t, err)

	clock.Advance(DefaultCacheTTL + time.Second)

	_, err = cache.GetOrAssume(context.Background(), testKey("Role"), 3600)
	require.NoError(t, err)

	assert.Equal(t, 2, sts.callCount())
}

func TestCredentialCacheTTLCappedBySessionDuration(t *testing.T) {
	sts := &fakeSTS{}
	clock := newFakeClock()
	cache := NewCredentialCache(sts, WithCacheClock(clock.Now))

	// A 300s session must not be served from cache past 300s even
	// though the cache TTL default is longer.
	_, err := cache.GetOrAssume(context.Background(), testKey("Short"), 300)
	require.NoError(t, err)

	clock.Advance(301 * time.Second)

	_, err = cache.GetOrAssume(context.Background(), testKey("Short"), 300)
	require.NoError(t, err)

	assert.Equal(t, 2, sts.callCount())
}

func TestCredentialCacheDistinctKeysAreIndependent(t *testing.T) {
	sts := &fakeSTS{}
	cache := NewCredentialCache(sts)

	first, err := cache.GetOrAssume(context.Background(), testKey("Role1"), 3600)
	require.NoError(t, err)
	second, err := cache.GetOrAssume(context.Background(), testKey("Role2"), 3600)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessKeyID, second.AccessKeyID)
	assert.Equal(t, 2, sts.callCount())
}

func TestCredentialCacheConcurrentMissesBothSucceed(t *testing.T) {
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	sts := &fakeSTS{barrier: barrier}
	cache := NewCredentialCache(sts)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.GetOrAssume(context.Background(), testKey("Raced"), 3600)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 2, sts.callCount())
	assert.Equal(t, 1, cache.Len())
}

func TestCredentialCacheBoundedEntryCount(t *testing.T) {
	sts := &fakeSTS{}
	cache := NewCredentialCache(sts, WithCacheMaxEntries(2))

	for _, role := range []string{"A", "B", "C"} {
		_, err := cache.GetOrAssume(context.Background(), testKey(role), 3600)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, cache.Len())
}

func TestCredentialCacheResetDropsEntries(t *testing.T) {
	sts := &fakeSTS{}
	cache := NewCredentialCache(sts)

	_, err := cache.GetOrAssume(context.Background(), testKey("Role"), 3600)
	require.NoError(t, err)
	cache.Reset()

	_, err = cache.GetOrAssume(context.Background(), testKey("Role"), 3600)
	require.NoError(t, err)
	assert.Equal(t, 2, sts.callCount())
}

func TestCredentialCachePassesAssumeRoleParameters(t *testing.T) {
	sts := &fakeSTS{}
	cache := NewCredentialCache(sts)

	key := CacheKey{
		RoleARN:    "arn:aws:iam::222222222222:role/CrossAccountRole",
		Region:     "us-west-2",
		ExternalID: "superset-prod-12345",
	}
	_, err := cache.GetOrAssume(context.Background(), key, 1800)
	require.NoError(t, err)

	require.Len(t, sts.inputs, 1)
	assert.Equal(t, key.RoleARN, sts.inputs[0].RoleARN)
	assert.Equal(t, "us-west-2", sts.inputs[0].Region)
	assert.Equal(t, "superset-prod-12345", sts.inputs[0].ExternalID)
	assert.Equal(t, 1800, sts.inputs[0].DurationSeconds)
}

func TestMapAssumeRoleErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    domain.ErrorCode
		wantMessage string
	}{
		{
			name:        "generic access denied",
			err:         awserr.New("AccessDenied", "Access Denied", nil),
			wantCode:    domain.ErrorCodeAccessDenied,
			wantMessage: "verify the role ARN and trust policy",
		},
		{
			name:        "external id mismatch checked before generic denial",
			err:         awserr.New("AccessDenied", "The External ID does not match", nil),
			wantCode:    domain.ErrorCodeAccessDenied,
			wantMessage: "External ID mismatch",
		},
		{
			name:        "malformed policy",
			err:         awserr.New("MalformedPolicyDocument", "invalid ARN", nil),
			wantCode:    domain.ErrorCodeMissingParameters,
			wantMessage: "invalid role ARN",
		},
		{
			name:        "expired caller credentials",
			err:         awserr.New("ExpiredToken", "token expired", nil),
			wantCode:    domain.ErrorCodeAccessDenied,
			wantMessage: "caller credentials expired",
		},
		{
			name:        "invalid client token",
			err:         awserr.New("InvalidClientTokenId", "bad token", nil),
			wantCode:    domain.ErrorCodeAccessDenied,
			wantMessage: "caller lacks permission",
		},
		{
			name:        "non-sdk error",
			err:         errors.New("dial tcp: network down"),
			wantCode:    domain.ErrorCodeGenericDBEngine,
			wantMessage: "Unable to assume IAM role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sts := &fakeSTS{err: tt.err}
			cache := NewCredentialCache(sts)

			_, err := cache.GetOrAssume(context.Background(), testKey("Failing"), 3600)
			require.Error(t, err)

			ee, ok := domain.AsEngineError(err)
			require.True(t, ok, "expected an EngineError, got %v", err)
			assert.Equal(t, tt.wantCode, ee.Code)
			assert.Contains(t, ee.Message, tt.wantMessage)
		})
	}
}

func TestAssumeRoleFailureIsNotCached(t *testing.T) {
	sts := &fakeSTS{err: awserr.New("AccessDenied", "Access Denied", nil)}
	cache := NewCredentialCache(sts)

	_, err := cache.GetOrAssume(context.Background(), testKey("Denied"), 3600)
	require.Error(t, err)

	sts.err = nil
	_, err = cache.GetOrAssume(context.Background(), testKey("Denied"), 3600)
	require.NoError(t, err)
	assert.Equal(t, 2, sts.callCount())
}
