// Package api exposes the catalog over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jacentio/spool/assoc"
	"github.com/jacentio/spool/catalog"
)

// Catalog is the catalog surface served by the API.
type Catalog interface {
	ListBrands(ctx context.Context, lastKey string) (catalog.BrandPage, error)
	ListProducts(ctx context.Context, brand, lastKey string) (catalog.ProductPage, error)
	ListGroupMembers(ctx context.Context, brand, group, lastKey string) (catalog.MemberPage, error)
	Inventory(ctx context.Context, brand string) (catalog.Inventory, error)
	SubmitProducts(ctx context.Context, brand string, products []catalog.Product) (catalog.SubmitResult, error)
	ImportProducts(ctx context.Context, brand string, products []catalog.Product) (catalog.ImportResult, error)
	CreateGroup(ctx context.Context, brand string, g catalog.Group) error
	LinkProduct(ctx context.Context, brand, gtin, group string) error
	UnlinkProduct(ctx context.Context, brand, gtin string) (bool, error)
	RenameGroup(ctx context.Context, brand, group, name string) (assoc.Stats, error)
	DeleteGroup(ctx context.Context, brand, group string) (assoc.Stats, error)
}

// Router creates and configures the HTTP router.
type Router struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewRouter creates a new router instance.
func NewRouter(c Catalog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		catalog: c,
		logger:  logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(rt.logRequests)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		rt.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/brands", rt.listBrands)
	router.Route("/brands/{brand}", func(r chi.Router) {
		r.Get("/inventory", rt.inventory)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", rt.listProducts)
			r.Post("/", rt.submitProducts)
			r.Post("/import", rt.importProducts)
			r.Put("/{gtin}/group", rt.linkProduct)
			r.Delete("/{gtin}/group", rt.unlinkProduct)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", rt.createGroup)
			r.Get("/{group}/members", rt.listGroupMembers)
			r.Patch("/{group}", rt.renameGroup)
			r.Delete("/{group}", rt.deleteGroup)
		})
	})

	return router
}

// logRequests logs every request once it has been served.
func (rt *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
