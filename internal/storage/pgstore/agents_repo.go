package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
)

const agentColumns = `
  id, email, first_name, last_name, phone, role, id_type, id_number, region,
  approval_status, active, password_hash, created_at, updated_at`

func scanAgent(row scanner) (*models.Agent, error) {
	var a models.Agent
	if err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.Role, &a.IDType, &a.IDNumber, &a.Region,
		&a.ApprovalStatus, &a.Active, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Storage) CreateAgent(ctx context.Context, a *models.Agent) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO agents (
  id, email, first_name, last_name, phone, role, id_type, id_number, region,
  approval_status, active, password_hash, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`, a.ID, a.Email, a.FirstName, a.LastName, a.Phone, a.Role, a.IDType, a.IDNumber, a.Region,
		a.ApprovalStatus, a.Active, a.PasswordHash, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return apperr.FromStorage(err, "insert agent")
}

func (s *Storage) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a, err := scanAgent(s.db.QueryRow(ctx, `SELECT`+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromStorage(err, "select agent")
	}
	return a, nil
}

func (s *Storage) GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	a, err := scanAgent(s.db.QueryRow(ctx, `SELECT`+agentColumns+` FROM agents WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, apperr.FromStorage(err, "select agent by email")
	}
	return a, nil
}

// ListAgents: пустой approvalStatus означает всех.
func (s *Storage) ListAgents(ctx context.Context, approvalStatus string) ([]*models.Agent, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+agentColumns+`
FROM agents
WHERE ($1 = '' OR approval_status = $1)
ORDER BY created_at DESC
`, approvalStatus)
	if err != nil {
		return nil, apperr.FromStorage(err, "select agents")
	}
	defer rows.Close()

	out := []*models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, apperr.FromStorage(err, "scan agent")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, apperr.FromStorage(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SetAgentApproval(ctx context.Context, id, approvalStatus string, active bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE agents SET approval_status = $2, active = $3, updated_at = $4 WHERE id = $1
`, id, approvalStatus, active, at.UTC())
	if err != nil {
		return apperr.FromStorage(err, "update agent approval")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(apperr.ErrNotFound, "update agent approval")
	}
	return nil
}
