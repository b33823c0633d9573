package packages_api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/BearBump/BundleBox/internal/services/packages"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, in models.PackageInput) (*models.Package, error)
	Get(ctx context.Context, id string) (*models.Package, error)
	List(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error)
	Update(ctx context.Context, id string, patch models.PackagePatch) (*models.Package, error)
	Delete(ctx context.Context, id string) error
}

type PackagesAPI struct {
	svc Service
}

func New(svc Service) *PackagesAPI {
	return &PackagesAPI{svc: svc}
}

// Routes: чтение каталога, доступно любой сессии.
func (a *PackagesAPI) Routes(r chi.Router) {
	r.Get("/packages", a.list)
	r.Get("/packages/{id}", a.get)
}

// AdminRoutes меняют каталог.
func (a *PackagesAPI) AdminRoutes(r chi.Router) {
	r.Post("/packages", a.create)
	r.Patch("/packages/{id}", a.update)
	r.Delete("/packages/{id}", a.delete)
}

type packageRequest struct {
	Carrier  *string          `json:"carrier"`
	Name     *string          `json:"name"`
	Data     *string          `json:"data"`
	Validity *string          `json:"validity"`
	Price    *decimal.Decimal `json:"price"`
	Active   *bool            `json:"active"`
	Popular  *bool            `json:"popular"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (a *PackagesAPI) create(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	in := models.PackageInput{
		Carrier:  deref(req.Carrier),
		Name:     deref(req.Name),
		Data:     deref(req.Data),
		Validity: deref(req.Validity),
		Active:   req.Active,
		Popular:  req.Popular,
	}
	if req.Price != nil {
		in.Price = *req.Price
	}

	p, err := a.svc.Create(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (a *PackagesAPI) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	carrier := strings.TrimSpace(q.Get("carrier"))
	if carrier == "" {
		carrier = packages.DefaultCarrier
	}
	activeOnly := false
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, r, apperr.Validation("Invalid active flag", "active"))
			return
		}
		activeOnly = b
	}

	out, err := a.svc.List(r.Context(), carrier, activeOnly)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *PackagesAPI) get(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (a *PackagesAPI) update(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, err := a.svc.Update(r.Context(), chi.URLParam(r, "id"), models.PackagePatch{
		Carrier:  req.Carrier,
		Name:     req.Name,
		Data:     req.Data,
		Validity: req.Validity,
		Price:    req.Price,
		Active:   req.Active,
		Popular:  req.Popular,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (a *PackagesAPI) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
