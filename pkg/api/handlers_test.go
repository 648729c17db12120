package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/assignments"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/bundle"
	"github.com/wardenhq/warden/pkg/policy"
	"github.com/wardenhq/warden/pkg/store"
)

type testEnv struct {
	server *Server
	sink   *audit.MemorySink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithGraph(t, assignments.NewStore(assignments.NewMemoryBackend()))
}

func newTestEnvWithGraph(t *testing.T, graph *assignments.Store) *testEnv {
	t.Helper()
	engine := policy.NewEngine(policy.NewMemoryBackend())
	sink := audit.NewMemorySink()
	server := NewServer(Deps{
		Entities:  store.NewStore(store.NewMemoryBackend()),
		Graph:     graph,
		Policies:  engine,
		Exporter:  bundle.NewExporter(engine, nil),
		AuditSink: sink,
	})
	return &testEnv{server: server, sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestRoleCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin", Description: "full access"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var role store.Role
	decodeBody(t, rec, &role)
	assert.Equal(t, "acme", role.Tenant)
	assert.Equal(t, "admin", role.Name)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/roles/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/tenants/acme/roles/admin", map[string]string{"description": "updated"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &role)
	assert.Equal(t, "updated", role.Description)

	rec = env.do(t, "DELETE", "/api/v1/tenants/acme/roles/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var del deleteResponse
	decodeBody(t, rec, &del)
	assert.Equal(t, "deleted", del.Status)
	assert.Empty(t, del.Warning)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/roles/admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRole_DuplicateIs409(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin"})
	rec := env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRole_ValidationIs400(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRole_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin"})

	rec := env.do(t, "GET", "/api/v1/tenants/globex/roles/admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRoles_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		rec := env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: fmt.Sprintf("role-%d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, "GET", "/api/v1/tenants/acme/roles?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page rolePageResponse
	decodeBody(t, rec, &page)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextToken)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/roles?limit=10&token="+page.NextToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = rolePageResponse{}
	decodeBody(t, rec, &page)
	assert.Len(t, page.Items, 3)
	assert.Empty(t, page.NextToken)
}

func TestPermissionCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/tenants/acme/permissions", createEntityRequest{Name: "billing:read"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page permissionPageResponse
	decodeBody(t, rec, &page)
	assert.Len(t, page.Items, 1)

	rec = env.do(t, "DELETE", "/api/v1/tenants/acme/permissions/billing:read", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/tenants/acme/permissions/billing:read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRole_CascadesEdges(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin"})

	env.do(t, "POST", "/api/v1/tenants/acme/assignments/role-permission", assignRequest{Parent: "admin", Child: "billing:read"})
	env.do(t, "POST", "/api/v1/tenants/acme/assignments/group-role", assignRequest{Parent: "admins", Child: "admin"})

	rec := env.do(t, "DELETE", "/api/v1/tenants/acme/roles/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The role's outgoing and incoming edges are gone.
	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/role-permission/admin/children", nil)
	var members membersResponse
	decodeBody(t, rec, &members)
	assert.Empty(t, members.Members)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/group-role/admins/children", nil)
	decodeBody(t, rec, &members)
	assert.Empty(t, members.Members)
}

func TestAssignments(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/tenants/acme/assignments/group-role", assignRequest{Parent: "admins", Child: "admin"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/group-role/admins/children", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members membersResponse
	decodeBody(t, rec, &members)
	assert.Equal(t, []string{"admin"}, members.Members)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/group-role/admin/parents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &members)
	assert.Equal(t, []string{"admins"}, members.Members)

	rec = env.do(t, "DELETE", "/api/v1/tenants/acme/assignments/group-role/admins/admin", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/group-role/admins/children", nil)
	decodeBody(t, rec, &members)
	assert.Empty(t, members.Members)
}

func TestAssignment_UnknownKindIs400(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/tenants/acme/assignments/owner-pet", assignRequest{Parent: "a", Child: "b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// failAfterBackend fails every DeletePair after the first n calls.
type failAfterBackend struct {
	assignments.EdgeBackend
	allowed int
	calls   int
}

func (f *failAfterBackend) DeletePair(ctx context.Context, e assignments.Edge) error {
	f.calls++
	if f.calls > f.allowed {
		return errors.New("provisioned throughput exceeded")
	}
	return f.EdgeBackend.DeletePair(ctx, e)
}

func TestCascadeRemoval_PartialFailureIs200WithWarning(t *testing.T) {
	backend := &failAfterBackend{EdgeBackend: assignments.NewMemoryBackend(), allowed: 2}
	env := newTestEnvWithGraph(t, assignments.NewStore(backend))

	for _, child := range []string{"a", "b", "c", "d"} {
		rec := env.do(t, "POST", "/api/v1/tenants/acme/assignments/role-permission", assignRequest{Parent: "admin", Child: child})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, "DELETE", "/api/v1/tenants/acme/assignments/role-permission/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var del deleteResponse
	decodeBody(t, rec, &del)
	assert.Equal(t, "partial", del.Status)
	assert.NotEmpty(t, del.Warning)
	assert.Equal(t, 2, del.Removed)
	assert.Equal(t, 2, del.Remaining)

	// Removed edges stay removed.
	var members membersResponse
	rec = env.do(t, "GET", "/api/v1/tenants/acme/assignments/role-permission/admin/children", nil)
	decodeBody(t, rec, &members)
	assert.Len(t, members.Members, 2)
}

func TestPolicyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{
		ID: "access", Definition: "package access\nallow = false", Language: "rego",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var v policy.Version
	decodeBody(t, rec, &v)
	assert.Equal(t, 1, v.Version)
	assert.True(t, v.Active)

	rec = env.do(t, "PUT", "/api/v1/tenants/acme/policies/access", map[string]string{"definition": "package access\nallow = true"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &v)
	assert.Equal(t, 2, v.Version)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/policies/access", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &v)
	assert.Equal(t, 2, v.Version)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/policies/access/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list policyListResponse
	decodeBody(t, rec, &list)
	assert.Len(t, list.Items, 2)

	rec = env.do(t, "POST", "/api/v1/tenants/acme/policies/access/rollback/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &v)
	assert.Equal(t, 3, v.Version)
	assert.Equal(t, "package access\nallow = false", v.Definition)

	rec = env.do(t, "DELETE", "/api/v1/tenants/acme/policies/access", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "GET", "/api/v1/tenants/acme/policies/access", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// History survives deletion.
	rec = env.do(t, "GET", "/api/v1/tenants/acme/policies/access/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Len(t, list.Items, 3)
}

func TestPolicy_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{ID: "p", Definition: "x"})

	t.Run("duplicate id is 409", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{ID: "p", Definition: "y"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing version is 404", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/tenants/acme/policies/p/versions/9", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rollback to missing version is 404", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/v1/tenants/acme/policies/p/rollback/9", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric version is 400", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/v1/tenants/acme/policies/p/versions/latest", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown policy is 404", func(t *testing.T) {
		rec := env.do(t, "PUT", "/api/v1/tenants/acme/policies/ghost", map[string]string{"definition": "z"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListActivePolicies(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{ID: "b", Definition: "B"})
	env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{ID: "a", Definition: "A"})
	env.do(t, "POST", "/api/v1/tenants/globex/policies", createPolicyRequest{ID: "c", Definition: "C"})

	rec := env.do(t, "GET", "/api/v1/tenants/acme/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list policyListResponse
	decodeBody(t, rec, &list)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "a", list.Items[0].ID)
	assert.Equal(t, "b", list.Items[1].ID)
}

func TestDownloadBundle(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/policies", createPolicyRequest{ID: "p", Definition: "allow", Language: "rego"})

	rec := env.do(t, "GET", "/api/v1/tenants/acme/bundle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bundle.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "acme-bundle.tar.gz")
	assert.NotZero(t, rec.Body.Len())
}

func TestPublishBundle_UnconfiguredIs503(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/v1/tenants/acme/bundle/publish", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMutationsEmitAuditEvents(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/api/v1/tenants/acme/roles", createEntityRequest{Name: "admin"})

	// Emission is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.sink.Events()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := env.sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "acme", events[0].Tenant)
	assert.Equal(t, audit.ActionCreate, events[0].Action)
	assert.Equal(t, "role", events[0].Resource)
	assert.Equal(t, "admin", events[0].Target)
}
