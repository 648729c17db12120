package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/wardenhq/warden/pkg/assignments"
	"github.com/wardenhq/warden/pkg/async"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/bundle"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/policy"
	"github.com/wardenhq/warden/pkg/store"
)

// Deps carries the server's collaborators. Publisher, Metrics, and AuditSink
// are optional.
type Deps struct {
	Entities  *store.Store
	Graph     *assignments.Store
	Policies  *policy.Engine
	Exporter  *bundle.Exporter
	Publisher *bundle.Publisher
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	AuditSink audit.Sink
}

// Server is the HTTP API server.
type Server struct {
	entities  *store.Store
	graph     *assignments.Store
	policies  *policy.Engine
	exporter  *bundle.Exporter
	publisher *bundle.Publisher
	router    *mux.Router
	logger    *observability.Logger
	metrics   *observability.Metrics
	sink      audit.Sink
}

// NewServer creates the API server and wires its routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	sink := deps.AuditSink
	if sink == nil {
		sink = audit.NopSink{}
	}

	s := &Server{
		entities:  deps.Entities,
		graph:     deps.Graph,
		policies:  deps.Policies,
		exporter:  deps.Exporter,
		publisher: deps.Publisher,
		router:    mux.NewRouter(),
		logger:    logger,
		metrics:   deps.Metrics,
		sink:      sink,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured route handler.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	t := s.router.PathPrefix("/api/v1/tenants/{tenant}").Subrouter()

	// Role routes
	t.HandleFunc("/roles", s.createRole).Methods("POST")
	t.HandleFunc("/roles", s.listRoles).Methods("GET")
	t.HandleFunc("/roles/{name}", s.getRole).Methods("GET")
	t.HandleFunc("/roles/{name}", s.updateRole).Methods("PUT")
	t.HandleFunc("/roles/{name}", s.deleteRole).Methods("DELETE")

	// Permission routes
	t.HandleFunc("/permissions", s.createPermission).Methods("POST")
	t.HandleFunc("/permissions", s.listPermissions).Methods("GET")
	t.HandleFunc("/permissions/{name}", s.getPermission).Methods("GET")
	t.HandleFunc("/permissions/{name}", s.updatePermission).Methods("PUT")
	t.HandleFunc("/permissions/{name}", s.deletePermission).Methods("DELETE")

	// Assignment graph routes
	t.HandleFunc("/assignments/{kind}", s.createAssignment).Methods("POST")
	t.HandleFunc("/assignments/{kind}/{parent}/children", s.listChildren).Methods("GET")
	t.HandleFunc("/assignments/{kind}/{child}/parents", s.listParents).Methods("GET")
	t.HandleFunc("/assignments/{kind}/{parent}/{child}", s.removeAssignment).Methods("DELETE")
	t.HandleFunc("/assignments/{kind}/{parent}", s.removeAllAssignments).Methods("DELETE")

	// Policy routes
	t.HandleFunc("/policies", s.createPolicy).Methods("POST")
	t.HandleFunc("/policies", s.listActivePolicies).Methods("GET")
	t.HandleFunc("/policies/{id}", s.getPolicy).Methods("GET")
	t.HandleFunc("/policies/{id}", s.updatePolicy).Methods("PUT")
	t.HandleFunc("/policies/{id}", s.deletePolicy).Methods("DELETE")
	t.HandleFunc("/policies/{id}/versions", s.listPolicyVersions).Methods("GET")
	t.HandleFunc("/policies/{id}/versions/{version}", s.getPolicyVersion).Methods("GET")
	t.HandleFunc("/policies/{id}/rollback/{version}", s.rollbackPolicy).Methods("POST")

	// Bundle routes
	t.HandleFunc("/bundle", s.downloadBundle).Methods("GET")
	t.HandleFunc("/bundle/publish", s.publishBundle).Methods("POST")
}

// tenantFromRequest scopes the request context to its tenant.
func (s *Server) tenantFromRequest(w http.ResponseWriter, r *http.Request) (string, *http.Request, bool) {
	tenant, ok := httputil.ParsePathStringOrError(w, r, "tenant")
	if !ok {
		return "", r, false
	}
	return tenant, r.WithContext(observability.WithTenant(r.Context(), tenant)), true
}

// audit emits an event off the request path.
func (s *Server) audit(r *http.Request, tenant string, action audit.Action, resource, target, outcome string) {
	event := audit.Event{
		RequestID: observability.GetRequestID(r.Context()),
		Tenant:    tenant,
		Action:    action,
		Resource:  resource,
		Target:    target,
		Outcome:   outcome,
	}
	async.SafeGo(r.Context(), 5*time.Second, "audit emission", func(ctx context.Context) error {
		return s.sink.Write(ctx, event)
	})
}

func (s *Server) recordEntityOp(kind store.EntityKind, operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.EntityOperationsTotal.WithLabelValues(string(kind), operation, result).Inc()
}

func (s *Server) recordEdgeOp(kind assignments.Kind, operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.EdgeOperationsTotal.WithLabelValues(string(kind), operation, result).Inc()
}

func (s *Server) recordPolicyOp(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.PolicyOperationsTotal.WithLabelValues(operation, result).Inc()
}

// writeStoreError maps store errors onto the HTTP status taxonomy.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, store.ErrVersionNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, store.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
