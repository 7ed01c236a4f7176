package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jacentio/spool/assoc"
	"github.com/jacentio/spool/catalog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// lastKeyParam is the query parameter carrying a listing cursor.
const lastKeyParam = "last_key"

// ProductsRequest is the body of product submissions and imports.
type ProductsRequest struct {
	Products []catalog.Product `json:"products"`
}

// LinkRequest is the body of PUT /brands/{brand}/products/{gtin}/group.
type LinkRequest struct {
	Group string `json:"group"`
}

// RenameRequest is the body of PATCH /brands/{brand}/groups/{group}.
type RenameRequest struct {
	Name string `json:"name"`
}

// StatsResponse reports a group cascade.
type StatsResponse struct {
	Records         int `json:"records"`
	Unlinked        int `json:"unlinked"`
	AlreadyUnlinked int `json:"already_unlinked"`
	Refreshed       int `json:"refreshed"`
}

func newStatsResponse(s assoc.Stats) StatsResponse {
	return StatsResponse{
		Records:         s.Records,
		Unlinked:        s.Unlinked,
		AlreadyUnlinked: s.AlreadyUnlinked,
		Refreshed:       s.Refreshed,
	}
}

// listBrands handles GET /brands
func (rt *Router) listBrands(w http.ResponseWriter, r *http.Request) {
	page, err := rt.catalog.ListBrands(r.Context(), r.URL.Query().Get(lastKeyParam))
	if err != nil {
		rt.respondServiceError(w, r, "list brands", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, page)
}

// listProducts handles GET /brands/{brand}/products
func (rt *Router) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := rt.catalog.ListProducts(r.Context(), chi.URLParam(r, "brand"), r.URL.Query().Get(lastKeyParam))
	if err != nil {
		rt.respondServiceError(w, r, "list products", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, page)
}

// inventory handles GET /brands/{brand}/inventory
func (rt *Router) inventory(w http.ResponseWriter, r *http.Request) {
	inv, err := rt.catalog.Inventory(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		rt.respondServiceError(w, r, "inventory", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, inv)
}

// submitProducts handles POST /brands/{brand}/products
func (rt *Router) submitProducts(w http.ResponseWriter, r *http.Request) {
	var req ProductsRequest
	if !rt.decode(w, r, &req) {
		return
	}

	res, err := rt.catalog.SubmitProducts(r.Context(), chi.URLParam(r, "brand"), req.Products)
	if err != nil {
		rt.respondServiceError(w, r, "submit products", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, res)
}

// importProducts handles POST /brands/{brand}/products/import
func (rt *Router) importProducts(w http.ResponseWriter, r *http.Request) {
	var req ProductsRequest
	if !rt.decode(w, r, &req) {
		return
	}

	res, err := rt.catalog.ImportProducts(r.Context(), chi.URLParam(r, "brand"), req.Products)
	if err != nil && res.Queued == 0 {
		rt.respondServiceError(w, r, "import products", err)
		return
	}
	if err != nil {
		rt.logger.Warn("import partially failed",
			"brand", chi.URLParam(r, "brand"),
			"error", err,
		)
	}

	status := http.StatusOK
	if res.Queued > 0 {
		status = http.StatusAccepted
	}
	rt.respondJSON(w, status, res)
}

// linkProduct handles PUT /brands/{brand}/products/{gtin}/group
func (rt *Router) linkProduct(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !rt.decode(w, r, &req) {
		return
	}

	err := rt.catalog.LinkProduct(r.Context(), chi.URLParam(r, "brand"), chi.URLParam(r, "gtin"), req.Group)
	if err != nil {
		rt.respondServiceError(w, r, "link product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unlinkProduct handles DELETE /brands/{brand}/products/{gtin}/group
func (rt *Router) unlinkProduct(w http.ResponseWriter, r *http.Request) {
	removed, err := rt.catalog.UnlinkProduct(r.Context(), chi.URLParam(r, "brand"), chi.URLParam(r, "gtin"))
	if err != nil {
		rt.respondServiceError(w, r, "unlink product", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// createGroup handles POST /brands/{brand}/groups
func (rt *Router) createGroup(w http.ResponseWriter, r *http.Request) {
	var g catalog.Group
	if !rt.decode(w, r, &g) {
		return
	}

	if err := rt.catalog.CreateGroup(r.Context(), chi.URLParam(r, "brand"), g); err != nil {
		rt.respondServiceError(w, r, "create group", err)
		return
	}
	rt.respondJSON(w, http.StatusCreated, g)
}

// listGroupMembers handles GET /brands/{brand}/groups/{group}/members
func (rt *Router) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	page, err := rt.catalog.ListGroupMembers(r.Context(),
		chi.URLParam(r, "brand"),
		chi.URLParam(r, "group"),
		r.URL.Query().Get(lastKeyParam),
	)
	if err != nil {
		rt.respondServiceError(w, r, "list group members", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, page)
}

// renameGroup handles PATCH /brands/{brand}/groups/{group}
func (rt *Router) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !rt.decode(w, r, &req) {
		return
	}

	stats, err := rt.catalog.RenameGroup(r.Context(), chi.URLParam(r, "brand"), chi.URLParam(r, "group"), req.Name)
	if err != nil {
		rt.respondServiceError(w, r, "rename group", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, newStatsResponse(stats))
}

// deleteGroup handles DELETE /brands/{brand}/groups/{group}
func (rt *Router) deleteGroup(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.catalog.DeleteGroup(r.Context(), chi.URLParam(r, "brand"), chi.URLParam(r, "group"))
	if err != nil {
		rt.respondServiceError(w, r, "delete group", err)
		return
	}
	rt.respondJSON(w, http.StatusOK, newStatsResponse(stats))
}

// decode reads a JSON body into v, answering 400 when it cannot.
func (rt *Router) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		rt.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// respondServiceError maps a catalog error onto a status code.
func (rt *Router) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		rt.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		rt.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrExists):
		rt.respondError(w, http.StatusConflict, err.Error())
	default:
		rt.logger.Error("request failed",
			"op", op,
			"path", r.URL.Path,
			"error", err,
		)
		rt.respondError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func (rt *Router) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rt.logger.Error("failed to encode response", "error", err)
	}
}

func (rt *Router) respondError(w http.ResponseWriter, status int, message string) {
	rt.respondJSON(w, status, map[string]any{
		"error":   true,
		"message": message,
		"code":    status,
	})
}
