package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/handlers"
	"github.com/covxx/pelattahub-sub002/app/middleware"
	"github.com/covxx/pelattahub-sub002/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okHandler answers every endpoint with the actor it saw
type okHandler struct{}

func (okHandler) respond(c fiber.Ctx) error {
	actor, _ := middleware.GetActorFromContext(c)
	return handlers.SuccessResponse(c, fiber.StatusOK, "ok", fiber.Map{"actor": actor, "route": c.Route().Path})
}

func (h okHandler) Validate(c fiber.Ctx) error         { return h.respond(c) }
func (h okHandler) Preview(c fiber.Ctx) error          { return h.respond(c) }
func (h okHandler) AssignToProduct(c fiber.Ctx) error  { return h.respond(c) }
func (h okHandler) RepairAll(c fiber.Ctx) error        { return h.respond(c) }
func (h okHandler) Import(c fiber.Ctx) error           { return h.respond(c) }
func (h okHandler) Receive(c fiber.Ctx) error          { return h.respond(c) }
func (h okHandler) Get(c fiber.Ctx) error              { return h.respond(c) }
func (h okHandler) Label(c fiber.Ctx) error            { return h.respond(c) }
func (h okHandler) LabelPNG(c fiber.Ctx) error         { return h.respond(c) }
func (h okHandler) VerifyPick(c fiber.Ctx) error       { return h.respond(c) }
func (h okHandler) Export(c fiber.Ctx) error           { return h.respond(c) }
func (h okHandler) Print(c fiber.Ctx) error            { return h.respond(c) }
func (h okHandler) Create(c fiber.Ctx) error           { return h.respond(c) }
func (h okHandler) GetCompanyPrefix(c fiber.Ctx) error { return h.respond(c) }
func (h okHandler) SetCompanyPrefix(c fiber.Ctx) error { return h.respond(c) }
func (h okHandler) NextSequence(c fiber.Ctx) error     { return h.respond(c) }
func (h okHandler) PeekSequence(c fiber.Ctx) error     { return h.respond(c) }

type routeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Actor string `json:"actor"`
		Route string `json:"route"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (Router, services.TokenService) {
	t.Helper()
	tokens, err := services.NewTokenService(time.Hour, "pelattahub", "pelattahub-api", false, "", "", strings.Repeat("s", 32))
	require.NoError(t, err)

	h := okHandler{}
	r := NewFiberRouter(Handlers{GTIN: h, Lot: h, Receipt: h, Admin: h}, middleware.NewAuthMiddleware(tokens), Options{
		AppName:        "labels-test",
		Version:        "test",
		Environment:    "test",
		MetricsEnabled: true,
	}, nil)
	r.SetupRoutes()
	return r, tokens
}

func call(t *testing.T, r Router, method, target, token string) (*http.Response, routeResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)

	var body routeResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealthIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	r, tokens := newTestRouter(t)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"no header", "", "MISSING_AUTHORIZATION_HEADER"},
		{"wrong scheme", "Basic abc", "INVALID_AUTHORIZATION_FORMAT"},
		{"garbage token", "Bearer not-a-jwt", "TOKEN_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, r, http.MethodGet, "/api/v1/lots/01000001", tt.header)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}

	token, err := tokens.GenerateToken("operator-7", services.RoleOperator)
	require.NoError(t, err)
	resp, body := call(t, r, http.MethodGet, "/api/v1/lots/01000001", "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "operator-7", body.Data.Actor)
}

func TestLotRoutesResolveLiteralSegments(t *testing.T) {
	r, tokens := newTestRouter(t)
	token, err := tokens.GenerateToken("operator-7", services.RoleOperator)
	require.NoError(t, err)

	tests := []struct {
		method string
		target string
		route  string
	}{
		{http.MethodGet, "/api/v1/lots/export", "/api/v1/lots/export"},
		{http.MethodGet, "/api/v1/lots/01000001/label", "/api/v1/lots/:lot_number/label"},
		{http.MethodGet, "/api/v1/lots/01000001/label.png", "/api/v1/lots/:lot_number/label.png"},
		{http.MethodPost, "/api/v1/lots/01000001/verify-pick", "/api/v1/lots/:lot_number/verify-pick"},
		{http.MethodPost, "/api/v1/receipts", "/api/v1/receipts"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp, body := call(t, r, tt.method, tt.target, "Bearer "+token)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.route, strings.TrimSuffix(body.Data.Route, "/"))
		})
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	r, tokens := newTestRouter(t)
	operator, err := tokens.GenerateToken("operator-7", services.RoleOperator)
	require.NoError(t, err)
	admin, err := tokens.GenerateToken("admin-1", services.RoleAdmin)
	require.NoError(t, err)

	for _, target := range []string{"/api/v1/admin/settings/company-prefix", "/api/v1/sequences/next_lot_sequence"} {
		resp, body := call(t, r, http.MethodGet, target, "Bearer "+operator)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, target)
		assert.Equal(t, "ADMIN_ROLE_REQUIRED", body.Error.Code, target)

		resp, body = call(t, r, http.MethodGet, target, "Bearer "+admin)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, target)
		assert.Equal(t, "admin-1", body.Data.Actor, target)
	}
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	resp, body := call(t, r, http.MethodGet, "/api/v1/nowhere", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metrics, err := r.GetApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, metrics.StatusCode)
}
