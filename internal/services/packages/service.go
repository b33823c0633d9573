package packages

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/cache"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/google/uuid"
)

// DefaultCarrier: оператор, пакеты которого отдаются без явного ?carrier=.
const DefaultCarrier = "mtn"

type Repository interface {
	CreatePackage(ctx context.Context, p *models.Package) error
	GetPackage(ctx context.Context, id string) (*models.Package, error)
	ListPackages(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error)
	UpdatePackage(ctx context.Context, p *models.Package) error
	DeletePackage(ctx context.Context, id string) error
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	cacheTTL time.Duration
	now      func() time.Time
}

func New(repo Repository, c cache.BytesCache, cacheTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, in models.PackageInput) (*models.Package, error) {
	now := s.now()
	p := &models.Package{
		ID:        uuid.NewString(),
		Carrier:   normCarrier(in.Carrier),
		Name:      strings.TrimSpace(in.Name),
		Data:      strings.TrimSpace(in.Data),
		Validity:  strings.TrimSpace(in.Validity),
		Price:     in.Price,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if in.Popular != nil {
		p.Popular = *in.Popular
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePackage(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("package created", "package_id", p.ID, "carrier", p.Carrier, "name", p.Name)
	s.invalidate(ctx, p.Carrier)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Package, error) {
	return s.repo.GetPackage(ctx, id)
}

// List отдаёт пакеты оператора по возрастанию цены, через кэш.
func (s *Service) List(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error) {
	carrier = normCarrier(carrier)
	if carrier == "" {
		carrier = DefaultCarrier
	}
	key := listKey(carrier, activeOnly)

	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var out []*models.Package
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := s.repo.ListPackages(ctx, carrier, activeOnly)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cacheTTL > 0 {
		b, _ := json.Marshal(out)
		if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
			slog.Warn("cache packages", "carrier", carrier, "error", err.Error())
		}
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id string, patch models.PackagePatch) (*models.Package, error) {
	p, err := s.repo.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCarrier := p.Carrier

	if patch.Carrier != nil {
		p.Carrier = normCarrier(*patch.Carrier)
	}
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Data != nil {
		p.Data = strings.TrimSpace(*patch.Data)
	}
	if patch.Validity != nil {
		p.Validity = strings.TrimSpace(*patch.Validity)
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Popular != nil {
		p.Popular = *patch.Popular
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()

	if err := s.repo.UpdatePackage(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("package updated", "package_id", p.ID)
	s.invalidate(ctx, oldCarrier, p.Carrier)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.GetPackage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePackage(ctx, id); err != nil {
		return err
	}
	slog.Info("package deleted", "package_id", id)
	s.invalidate(ctx, p.Carrier)
	return nil
}

func validate(p *models.Package) error {
	var bad []string
	if utf8.RuneCountInString(p.Name) < 2 {
		bad = append(bad, "name")
	}
	if p.Data == "" {
		bad = append(bad, "data")
	}
	if p.Validity == "" {
		bad = append(bad, "validity")
	}
	if !models.ValidMoney(p.Price) {
		bad = append(bad, "price")
	}
	if utf8.RuneCountInString(p.Carrier) < 2 {
		bad = append(bad, "carrier")
	}
	if len(bad) > 0 {
		return apperr.Validation("Invalid package data", bad...)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, carriers ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, 2*len(carriers))
	for _, c := range carriers {
		keys = append(keys, listKey(c, false), listKey(c, true))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("cache invalidate packages", "error", err.Error())
	}
}

func normCarrier(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func listKey(carrier string, activeOnly bool) string {
	if activeOnly {
		return "packages:" + carrier + ":active"
	}
	return "packages:" + carrier + ":all"
}
