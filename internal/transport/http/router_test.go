package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cityrater/internal/platform/middleware"
	rlmodels "cityrater/internal/ratelimit/models"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/requestcontext"
	tu "cityrater/pkg/testutil"
)

type classLimiter struct{}

func (classLimiter) RateLimit(class rlmodels.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test-Class", string(class))
			next.ServeHTTP(w, r)
		})
	}
}

type echoUser struct{}

func (echoUser) echo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"userKey": requestcontext.AuthUserKey(r.Context()),
	})
}

type stubVotes struct{ echoUser }

func (s stubVotes) RegisterWrites(r chi.Router) { r.Post("/api/vote", s.echo) }
func (s stubVotes) RegisterReads(r chi.Router)  { r.Get("/api/stats", s.echo) }

type stubRoutes struct {
	echoUser
	method, path string
}

func (s stubRoutes) Register(r chi.Router) { r.Method(s.method, s.path, http.HandlerFunc(s.echo)) }

type stubTokens struct{}

func (stubTokens) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &middleware.JWTClaims{UserKey: "user-from-token", TelegramID: "42"}, nil
}

type RouterSuite struct {
	suite.Suite
	router http.Handler
	dbErr  error
}

func (s *RouterSuite) SetupTest() {
	s.dbErr = nil
	s.router = NewRouter(Deps{
		Logger:   tu.DiscardLogger(),
		Tokens:   stubTokens{},
		Limiter:  classLimiter{},
		Votes:    stubVotes{},
		Rankings: stubRoutes{method: http.MethodGet, path: "/api/rankings"},
		Identity: stubRoutes{method: http.MethodPost, path: "/api/register-telegram"},
		Health: NewHealthHandler(tu.DiscardLogger(), map[string]CheckFunc{
			"database": func(context.Context) error { return s.dbErr },
		}),
		CORSOrigins: []string{"https://app.example"},
	})
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) TestRateLimitClassPerGroup() {
	cases := []struct {
		req   *http.Request
		class rlmodels.EndpointClass
	}{
		{tu.NewRequest(s.T(), http.MethodGet, "/api/stats"), rlmodels.ClassRead},
		{tu.NewRequest(s.T(), http.MethodGet, "/api/rankings"), rlmodels.ClassRead},
		{tu.NewJSONRequest(s.T(), http.MethodPost, "/api/vote", map[string]string{}), rlmodels.ClassWrite},
		{tu.NewJSONRequest(s.T(), http.MethodPost, "/api/register-telegram", map[string]string{}), rlmodels.ClassAuth},
	}
	for _, tc := range cases {
		rr := tu.DoRequest(s.router, tc.req)
		s.Equal(http.StatusOK, rr.Code, tc.req.URL.Path)
		s.Equal(string(tc.class), rr.Header().Get("X-Test-Class"), tc.req.URL.Path)
		s.NotEmpty(rr.Header().Get("X-Request-ID"), tc.req.URL.Path)
	}
}

func (s *RouterSuite) TestBearerTokenPopulatesContext() {
	req := tu.WithBearer(tu.NewRequest(s.T(), http.MethodGet, "/api/stats"), "good")
	rr := tu.DoRequest(s.router, req)

	tu.AssertStatus(s.T(), rr, http.StatusOK)
	tu.AssertJSONContains(s.T(), rr, "userKey", "user-from-token")
}

func (s *RouterSuite) TestInvalidBearerRejected() {
	req := tu.WithBearer(tu.NewRequest(s.T(), http.MethodGet, "/api/stats"), "forged")
	rr := tu.DoRequest(s.router, req)

	tu.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestWriteRequiresJSONContentType() {
	req := tu.NewRequestWithBody(s.T(), http.MethodPost, "/api/vote", `{}`)
	req.Header.Set("Content-Type", "text/plain")
	rr := tu.DoRequest(s.router, req)

	tu.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *RouterSuite) TestUnknownRoute() {
	rr := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/api/nope"))

	tu.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *RouterSuite) TestCORSPreflight() {
	req := tu.NewRequest(s.T(), http.MethodOptions, "/api/vote")
	req.Header.Set("Origin", "https://app.example")
	rr := tu.DoRequest(s.router, req)

	s.Equal(http.StatusNoContent, rr.Code)
	s.Equal("https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func (s *RouterSuite) TestHealth() {
	s.Run("healthy", func() {
		rr := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/health"))

		tu.AssertStatus(s.T(), rr, http.StatusOK)
		tu.AssertJSONContains(s.T(), rr, "status", "ok")
	})

	s.Run("database down", func() {
		s.dbErr = errors.New("connection refused")
		rr := tu.DoRequest(s.router, tu.NewRequest(s.T(), http.MethodGet, "/health"))

		tu.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		body := tu.UnmarshalResponse[healthResponse](s.T(), rr)
		s.Equal("degraded", body.Status)
		s.Equal("down", body.Checks["database"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(Deps{
		Logger:   tu.DiscardLogger(),
		Tokens:   stubTokens{},
		Limiter:  classLimiter{},
		Votes:    stubVotes{},
		Rankings: stubRoutes{method: http.MethodGet, path: "/api/rankings"},
		Identity: stubRoutes{method: http.MethodPost, path: "/api/register-telegram"},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
}
