package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/blob"
	"entitygraph/internal/core"
	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/pkg/domain"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T, policy domain.ValidationPolicy, opts ...Option) *apiClient {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine(policy), memory.WithPolicy(policy))
	return &apiClient{t: t, handler: NewHandler(core.NewService(store), opts...)}
}

func (c *apiClient) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var out errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (c *apiClient) seed() {
	c.t.Helper()
	steps := []struct{ method, path, body string }{
		{http.MethodPost, "/api/v1/roles", `{"id":1,"name":"admin","gender":"Female"}`},
		{http.MethodPost, "/api/v1/issues", `{"id":1,"name":"login"}`},
		{http.MethodPost, "/api/v1/issues", `{"id":2,"name":"billing"}`},
		{http.MethodPost, "/api/v1/tags", `{"id":1,"name":"urgent"}`},
		{http.MethodPost, "/api/v1/users", `{"id":1,"name":"ada","age":36,"discount":0.1,"role_id":1}`},
		{http.MethodPut, "/api/v1/tags/1/issues/2", ""},
		{http.MethodPut, "/api/v1/tags/1/issues/1", ""},
		{http.MethodPut, "/api/v1/users/1/tags/1", ""},
	}
	for _, s := range steps {
		w := c.do(s.method, s.path, s.body)
		require.Less(c.t, w.Code, 300, "%s %s: %s", s.method, s.path, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	w := c.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateAndGet(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	c.seed()

	w := c.do(http.MethodPost, "/api/v1/tags", `{"name":"later"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/tags/2", w.Header().Get("Location"))
	assert.Equal(t, domain.Tag{ID: 2, Name: "later"}, decode[domain.Tag](t, w))

	w = c.do(http.MethodGet, "/api/v1/users/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.User{ID: 1, Name: "ada", Age: 36, Discount: 0.1, RoleID: 1}, decode[domain.User](t, w))
}

func TestErrorMapping(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	c.seed()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"missing", http.MethodGet, "/api/v1/roles/9", "", http.StatusNotFound, kindNotFound},
		{"duplicate", http.MethodPost, "/api/v1/issues", `{"id":1,"name":"dup"}`, http.StatusConflict, kindDuplicateID},
		{"validation", http.MethodPost, "/api/v1/roles", `{"name":"ops","gender":"Other"}`, http.StatusUnprocessableEntity, kindValidation},
		{"referenced role", http.MethodDelete, "/api/v1/roles/1", "", http.StatusConflict, kindReferentialIntegrity},
		{"dangling role", http.MethodPost, "/api/v1/users", `{"name":"bob","age":20,"role_id":5}`, http.StatusUnprocessableEntity, kindDanglingReference},
		{"role zero", http.MethodPut, "/api/v1/users/1/role/0", "", http.StatusUnprocessableEntity, kindDanglingReference},
		{"dangling link", http.MethodPut, "/api/v1/users/1/tags/7", "", http.StatusUnprocessableEntity, kindDanglingReference},
		{"unknown field", http.MethodPost, "/api/v1/tags", `{"name":"x","colour":"red"}`, http.StatusBadRequest, kindBadRequest},
		{"bad json", http.MethodPost, "/api/v1/tags", `{`, http.StatusBadRequest, kindBadRequest},
		{"bad order", http.MethodGet, "/api/v1/tags?order_by=age", "", http.StatusUnprocessableEntity, kindValidation},
		{"bad limit", http.MethodGet, "/api/v1/tags?limit=many", "", http.StatusBadRequest, kindBadRequest},
		{"missing view", http.MethodGet, "/api/v1/users/4/view", "", http.StatusNotFound, kindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := c.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decodeError(t, w)
			assert.Equal(t, tc.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRequiresJSONContentType(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tags", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	w := c.do(http.MethodPut, "/api/v1/roles", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPatchMergesFields(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	c.seed()

	w := c.do(http.MethodPatch, "/api/v1/users/1", `{"age":40,"id":99}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.User{ID: 1, Name: "ada", Age: 40, Discount: 0.1, RoleID: 1}, decode[domain.User](t, w))

	w = c.do(http.MethodPatch, "/api/v1/users/1", `{"age":"old"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = c.do(http.MethodPatch, "/api/v1/users/1", `[1]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = c.do(http.MethodPatch, "/api/v1/users/1", `{"discount":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = c.do(http.MethodPatch, "/api/v1/users/8", `{"age":3}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, "/api/v1/users/1", "")
	assert.Equal(t, 40, decode[domain.User](t, w).Age)
}

func TestProjectionsAndLinks(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	c.seed()

	w := c.do(http.MethodGet, "/api/v1/users/1/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[domain.UserView](t, w)
	assert.Equal(t, "admin", view.Role.Name)
	require.Len(t, view.Tags, 1)
	require.Len(t, view.Tags[0].Issues, 2)
	assert.Equal(t, "billing", view.Tags[0].Issues[0].Name)

	w = c.do(http.MethodGet, "/api/v1/tags/1/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[domain.TagView](t, w).Issues, 2)

	assert.Len(t, decode[[]domain.UserView](t, c.do(http.MethodGet, "/api/v1/views/users", "")), 1)
	assert.Len(t, decode[[]domain.TagView](t, c.do(http.MethodGet, "/api/v1/views/tags", "")), 1)

	ids := decode[map[string][]int64](t, c.do(http.MethodGet, "/api/v1/tags/1/issues", ""))
	assert.Equal(t, []int64{2, 1}, ids["issue_ids"])

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/tags/1/issues/2", "").Code)
	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/users/1/tags/1", "").Code)

	ids = decode[map[string][]int64](t, c.do(http.MethodGet, "/api/v1/issues/2/tags", ""))
	assert.Equal(t, []int64{}, ids["tag_ids"])
	ids = decode[map[string][]int64](t, c.do(http.MethodGet, "/api/v1/tags/1/users", ""))
	assert.Equal(t, []int64{}, ids["user_ids"])
	ids = decode[map[string][]int64](t, c.do(http.MethodGet, "/api/v1/users/1/tags", ""))
	assert.Equal(t, []int64{}, ids["tag_ids"])
}

func TestAssignRoleAndDeleteFlow(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	c.seed()

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/roles", `{"id":2,"name":"viewer","gender":"Male"}`).Code)
	w := c.do(http.MethodPut, "/api/v1/users/1/role/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), decode[domain.User](t, w).RoleID)
	assert.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPut, "/api/v1/users/1/role/9", "").Code)

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/roles/1", "").Code)
	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/tags/1", "").Code)
	issues := decode[[]domain.Issue](t, c.do(http.MethodGet, "/api/v1/issues?order_by=name", ""))
	require.Len(t, issues, 2)
	assert.Equal(t, "billing", issues[0].Name)
}

func TestListPaging(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	for _, name := range []string{"c", "a", "b"} {
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/tags", `{"name":"`+name+`"}`).Code)
	}
	tags := decode[[]domain.Tag](t, c.do(http.MethodGet, "/api/v1/tags?order_by=name&offset=1&limit=1", ""))
	require.Len(t, tags, 1)
	assert.Equal(t, "b", tags[0].Name)
}

func TestRuleViolationIncludesViolations(t *testing.T) {
	policy := domain.DefaultValidationPolicy()
	policy.MaxIssuesPerTag = 2
	c := newClient(t, policy)
	c.seed()
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/issues", `{"id":3,"name":"export"}`).Code)

	w := c.do(http.MethodPut, "/api/v1/tags/1/issues/3", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, kindRuleViolation, body.Kind)
	require.Len(t, body.Violations, 1)
	assert.Equal(t, "tag_issue_cap", body.Violations[0].Rule)
	assert.Equal(t, int64(1), body.Violations[0].EntityID)
}

func TestBackupEndpoints(t *testing.T) {
	store := blob.NewMemory()
	c := newClient(t, domain.DefaultValidationPolicy(), WithBackupStore(store))
	c.seed()

	w := c.do(http.MethodPost, "/api/v1/backups", `{"key":"backups/manual.json"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "backups/manual.json", decode[blob.Info](t, w).Key)
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/backups", `{"key":"backups/manual.json"}`).Code)

	infos := decode[[]blob.Info](t, c.do(http.MethodGet, "/api/v1/backups", ""))
	require.Len(t, infos, 1)

	require.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/users/1", "").Code)
	w = c.do(http.MethodPost, "/api/v1/backups/restore", `{"key":"backups/manual.json"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/users/1/view", "").Code)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/v1/backups/restore", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/api/v1/backups/restore", `{"key":"backups/none.json"}`).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/v1/backups", `{"key":"../escape"}`).Code)
}

func TestBackupRoutesAbsentWithoutStore(t *testing.T) {
	c := newClient(t, domain.DefaultValidationPolicy())
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/backups", "").Code)
}

func TestMetricsAccessLogAndRecovery(t *testing.T) {
	var access bytes.Buffer
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "entitygraph_up 1\n")
	})
	c := newClient(t, domain.DefaultValidationPolicy(), WithMetricsHandler(metrics), WithAccessLog(&access), WithLogger(nil))
	h := c.handler.(*Handler)
	h.Router().HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := c.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entitygraph_up")
	assert.Contains(t, access.String(), "GET /metrics")

	w = c.do(http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
}
