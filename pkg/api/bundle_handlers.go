package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/bundle"
	"github.com/wardenhq/warden/pkg/httputil"
)

// downloadBundle streams the tenant's active policy bundle. The archive is
// fully assembled before the first byte is written, so a failure never
// produces a truncated download.
func (s *Server) downloadBundle(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}

	data, err := s.exporter.Build(r.Context(), tenant)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", bundle.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bundle.Filename(tenant)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// publishBundle pushes the tenant's bundle to object storage on demand.
func (s *Server) publishBundle(w http.ResponseWriter, r *http.Request) {
	tenant, r, ok := s.tenantFromRequest(w, r)
	if !ok {
		return
	}
	if s.publisher == nil {
		httputil.WriteServiceUnavailable(w, "bundle publishing is not configured")
		return
	}

	key, err := s.publisher.Publish(r.Context(), tenant)
	if err != nil {
		s.audit(r, tenant, audit.ActionPublish, "bundle", bundle.Filename(tenant), "failure")
		httputil.WriteInternalError(w, err)
		return
	}
	s.audit(r, tenant, audit.ActionPublish, "bundle", key, "success")
	httputil.WriteSuccess(w, publishResponse{Key: key})
}
