package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityrater/internal/ratelimit/models"
	"cityrater/internal/ratelimit/service"
	"cityrater/internal/ratelimit/store/bucket"
	"cityrater/pkg/requestcontext"
	tu "cityrater/pkg/testutil"
)

type brokenLimiter struct{}

func (brokenLimiter) CheckIP(context.Context, string, models.EndpointClass) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

func (brokenLimiter) CheckBoth(context.Context, string, string, models.EndpointClass) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newLimiter(t *testing.T, write int) *service.Service {
	t.Helper()
	svc, err := service.New(bucket.NewInMemoryBucketStore(), service.PerMinute(100, write, 10),
		service.WithLogger(tu.DiscardLogger()))
	require.NoError(t, err)
	return svc
}

func request(t *testing.T, ip, userKey string) *http.Request {
	req := tu.NewRequest(t, http.MethodPost, "/api/vote")
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, "test")
	if userKey != "" {
		ctx = requestcontext.WithAuth(ctx, userKey, "42")
	}
	return req.WithContext(ctx)
}

func TestRateLimit(t *testing.T) {
	h := New(newLimiter(t, 2), tu.DiscardLogger()).RateLimit(models.ClassWrite)(ok)

	for i := range 2 {
		rr := tu.DoRequest(h, request(t, "203.0.113.7", ""))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"1", "0"}[i], rr.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
	}

	rr := tu.DoRequest(h, request(t, "203.0.113.7", ""))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	body := tu.UnmarshalResponse[models.RateLimitExceededResponse](t, rr)
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Positive(t, body.RetryAfter)
	assert.Equal(t, strconv.Itoa(body.RetryAfter), rr.Header().Get("Retry-After"))

	rr = tu.DoRequest(h, request(t, "198.51.100.4", ""))
	assert.Equal(t, http.StatusOK, rr.Code, "other clients keep their budget")
}

func TestRateLimitAuthenticatedUser(t *testing.T) {
	h := New(newLimiter(t, 2), tu.DiscardLogger()).RateLimit(models.ClassWrite)(ok)

	assert.Equal(t, http.StatusOK, tu.DoRequest(h, request(t, "10.0.0.1", "user-1")).Code)
	assert.Equal(t, http.StatusOK, tu.DoRequest(h, request(t, "10.0.0.2", "user-1")).Code)

	rr := tu.DoRequest(h, request(t, "10.0.0.3", "user-1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "switching IPs does not reset the user budget")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := New(brokenLimiter{}, tu.DiscardLogger()).RateLimit(models.ClassRead)(ok)
	rr := tu.DoRequest(h, request(t, "10.0.0.1", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := New(newLimiter(t, 1), tu.DiscardLogger(), WithDisabled(true)).RateLimit(models.ClassWrite)(ok)
	for range 3 {
		assert.Equal(t, http.StatusOK, tu.DoRequest(h, request(t, "10.0.0.1", "")).Code)
	}
}
