package agents

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Repository interface {
	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error)
	ListAgents(ctx context.Context, approvalStatus string) ([]*models.Agent, error)
	SetAgentApproval(ctx context.Context, id, approvalStatus string, active bool, at time.Time) error
}

type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{
		repo: repo,
		cost: bcrypt.DefaultCost,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Register создаёт профиль агента. Новый профиль неактивен, пока админ его не одобрит.
func (s *Service) Register(ctx context.Context, in models.AgentInput) (*models.Agent, error) {
	in.Role = models.RoleAgent
	a, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateAgent(ctx, a); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, errors.Wrap(apperr.ErrConflict, "Profile already exists for this email")
		}
		return nil, err
	}
	slog.Info("agent registered", "agent_id", a.ID, "email", a.Email)
	return a, nil
}

// EnsureAdmin заводит учётку администратора при старте, если её ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, in models.AgentInput) (*models.Agent, error) {
	existing, err := s.repo.GetAgentByEmail(ctx, in.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	in.Role = models.RoleAdmin
	a, err := s.build(in)
	if err != nil {
		return nil, err
	}
	a.ApprovalStatus = models.ApprovalApproved
	a.Active = true
	if err := s.repo.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("admin account created", "agent_id", a.ID, "email", a.Email)
	return a, nil
}

func (s *Service) build(in models.AgentInput) (*models.Agent, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)

	var bad []string
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		bad = append(bad, "email")
	}
	if utf8.RuneCountInString(in.FirstName) < 2 {
		bad = append(bad, "firstName")
	}
	if utf8.RuneCountInString(in.LastName) < 2 {
		bad = append(bad, "lastName")
	}
	if len(in.Phone) < 10 {
		bad = append(bad, "phone")
	}
	if len(in.Password) < 6 {
		bad = append(bad, "password")
	}
	if in.Role != models.RoleAdmin && in.Role != models.RoleAgent {
		bad = append(bad, "role")
	}
	if len(bad) > 0 {
		return nil, apperr.Validation("Invalid request data", bad...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	now := s.now()
	return &models.Agent{
		ID:             uuid.NewString(),
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Phone:          in.Phone,
		Role:           in.Role,
		IDType:         in.IDType,
		IDNumber:       in.IDNumber,
		Region:         in.Region,
		ApprovalStatus: models.ApprovalPending,
		Active:         false,
		PasswordHash:   string(hash),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Authenticate проверяет пароль и то, что аккаунт одобрен и активен.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	a, err := s.repo.GetAgentByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "invalid credentials")
	}
	if err := CheckAccess(a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckAccess: аккаунт может работать только одобренным и активным.
func CheckAccess(a *models.Agent) error {
	if a.ApprovalStatus != models.ApprovalApproved || !a.Active {
		return errors.Wrapf(apperr.ErrForbidden, "account %s is %s", a.ID, a.ApprovalStatus)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Agent, error) {
	return s.repo.GetAgent(ctx, id)
}

func (s *Service) List(ctx context.Context, approvalStatus string) ([]*models.Agent, error) {
	switch approvalStatus {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		return nil, apperr.Validation("Unknown approval status", "status")
	}
	return s.repo.ListAgents(ctx, approvalStatus)
}

func (s *Service) Approve(ctx context.Context, id string) error {
	if err := s.repo.SetAgentApproval(ctx, id, models.ApprovalApproved, true, s.now()); err != nil {
		return err
	}
	slog.Info("agent approved", "agent_id", id)
	return nil
}

func (s *Service) Reject(ctx context.Context, id string) error {
	if err := s.repo.SetAgentApproval(ctx, id, models.ApprovalRejected, false, s.now()); err != nil {
		return err
	}
	slog.Info("agent rejected", "agent_id", id)
	return nil
}
