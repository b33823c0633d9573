package packages

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/cache/rediscache"
	"github.com/BearBump/BundleBox/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	items     map[string]*models.Package
	listCalls int
}

func newMemRepo() *memRepo { return &memRepo{items: map[string]*models.Package{}} }

func (r *memRepo) CreatePackage(ctx context.Context, p *models.Package) error {
	for _, x := range r.items {
		if x.Carrier == p.Carrier && x.Name == p.Name {
			return errors.Wrap(apperr.ErrConflict, "insert package")
		}
	}
	c := *p
	r.items[p.ID] = &c
	return nil
}

func (r *memRepo) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	p, ok := r.items[id]
	if !ok {
		return nil, errors.Wrap(apperr.ErrNotFound, "select package")
	}
	c := *p
	return &c, nil
}

func (r *memRepo) ListPackages(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error) {
	r.listCalls++
	out := []*models.Package{}
	for _, p := range r.items {
		if p.Carrier == carrier && (!activeOnly || p.Active) {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memRepo) UpdatePackage(ctx context.Context, p *models.Package) error {
	if _, ok := r.items[p.ID]; !ok {
		return apperr.ErrNotFound
	}
	c := *p
	r.items[p.ID] = &c
	return nil
}

func (r *memRepo) DeletePackage(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func newService(t *testing.T) (*Service, *memRepo) {
	mr := miniredis.RunT(t)
	repo := newMemRepo()
	return New(repo, rediscache.New(mr.Addr()), time.Minute), repo
}

func input() models.PackageInput {
	return models.PackageInput{Carrier: " MTN ", Name: "5GB Bundle", Data: "5GB", Validity: "30 days",
		Price: decimal.RequireFromString("25")}
}

func TestCreate_DefaultsAndNormalizes(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.Create(context.Background(), input())
	require.NoError(t, err)
	require.Equal(t, "mtn", p.Carrier)
	require.True(t, p.Active)
	require.False(t, p.Popular)
	require.NotEmpty(t, p.ID)

	_, err = svc.Create(context.Background(), input())
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService(t)

	in := models.PackageInput{Carrier: "m", Name: "x", Price: decimal.Zero}
	_, err := svc.Create(context.Background(), in)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Invalid package data", ve.Message)
	require.Equal(t, []string{"name", "data", "validity", "price", "carrier"}, ve.Fields)
}

func TestCreate_PriceMustFitColumn(t *testing.T) {
	svc, _ := newService(t)

	for _, price := range []string{"0.004", "50.005", "10000000000"} {
		in := input()
		in.Price = decimal.RequireFromString(price)
		_, err := svc.Create(context.Background(), in)
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve, price)
		require.Equal(t, []string{"price"}, ve.Fields, price)
	}
}

func TestList_CachedAndInvalidatedOnWrite(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, input())
	require.NoError(t, err)

	out, err := svc.List(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	_, err = svc.List(ctx, "MTN", false)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	inactive := false
	_, err = svc.Update(ctx, p.ID, models.PackagePatch{Active: &inactive})
	require.NoError(t, err)

	out, err = svc.List(ctx, "mtn", true)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 2, repo.listCalls)
}

func TestUpdate_MoveCarrierInvalidatesBoth(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, input())
	require.NoError(t, err)
	_, err = svc.List(ctx, "mtn", false)
	require.NoError(t, err)

	telecel := "Telecel"
	_, err = svc.Update(ctx, p.ID, models.PackagePatch{Carrier: &telecel})
	require.NoError(t, err)

	mtn, err := svc.List(ctx, "mtn", false)
	require.NoError(t, err)
	require.Empty(t, mtn)
	tel, err := svc.List(ctx, "telecel", false)
	require.NoError(t, err)
	require.Len(t, tel, 1)

	neg := decimal.RequireFromString("-1")
	_, err = svc.Update(ctx, p.ID, models.PackagePatch{Price: &neg})
	require.True(t, apperr.IsValidation(err))
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, input())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))
	require.ErrorIs(t, svc.Delete(ctx, p.ID), apperr.ErrNotFound)

	_, err = svc.Get(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_WithoutCache(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, nil, 0)
	_, err := svc.List(context.Background(), "airteltigo", true)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), "airteltigo", true)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}
