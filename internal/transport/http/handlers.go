package httptransport

import (
	"net/http"

	"dealerdesk/internal/entity"
	"dealerdesk/internal/platform/middleware"
	"dealerdesk/internal/requestdata"
	dErrors "dealerdesk/pkg/domain-errors"
	"dealerdesk/pkg/platform/httputil"
)

// EntityBinding describes the storage binding a request resolved, echoed back
// so API consumers (and the integration tests) can see which scope served them.
type EntityBinding struct {
	Entity     string `json:"entity"`
	Scope      string `json:"scope"`
	Collection string `json:"collection,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// resolveBinding runs the one operation business code is allowed to perform
// against the core: resolve an entity on the request's data context.
func (h *Handler) resolveBinding(w http.ResponseWriter, r *http.Request, name string) (EntityBinding, bool) {
	rc := middleware.GetDataContext(r.Context())
	if rc == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "request has no data context"))
		return EntityBinding{}, false
	}

	handle, err := rc.Resolve(r.Context(), name)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "entity resolution failed",
			"entity", name,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return EntityBinding{}, false
	}

	return bindingFrom(handle, rc), true
}

func bindingFrom(handle requestdata.Handle, rc *requestdata.Context) EntityBinding {
	desc := handle.Descriptor()
	b := EntityBinding{
		Entity: desc.Name(),
		Scope:  string(desc.Scope()),
	}
	if shape, ok := desc.Shape().(entity.CollectionShape); ok {
		b.Collection = shape.Collection
	}
	if desc.Scope() == entity.ScopeTenant {
		b.TenantID = rc.TenantID().String()
	}
	return b
}

type listResponse struct {
	Binding EntityBinding `json:"binding"`
	Items   []any         `json:"items"`
}

func (h *Handler) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	binding, ok := h.resolveBinding(w, r, "Vehicle")
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Binding: binding, Items: []any{}})
}

func (h *Handler) handleListInspections(w http.ResponseWriter, r *http.Request) {
	binding, ok := h.resolveBinding(w, r, "Inspection")
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Binding: binding, Items: []any{}})
}

func (h *Handler) handleListWorkshopQuotes(w http.ResponseWriter, r *http.Request) {
	binding, ok := h.resolveBinding(w, r, "WorkshopQuote")
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Binding: binding, Items: []any{}})
}

// adminOverviewResponse shows the shared-scope bindings the platform admin
// dashboard reads from.
type adminOverviewResponse struct {
	Bindings []EntityBinding `json:"bindings"`
}

func (h *Handler) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	var resp adminOverviewResponse
	for _, name := range []string{"MasterAdmin", "DealerGroup", "CatalogMake"} {
		binding, ok := h.resolveBinding(w, r, name)
		if !ok {
			return
		}
		resp.Bindings = append(resp.Bindings, binding)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
