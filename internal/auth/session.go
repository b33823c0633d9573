// Package auth выдаёт сессии пользователей в виде HS256 JWT и проверяет доступ в middleware.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// Session описывает пользователя, от имени которого пришёл запрос.
type Session struct {
	UserID    string
	AgentID   string
	Role      string
	ExpiresAt time.Time
}

func (s *Session) IsAdmin() bool { return s != nil && s.Role == models.RoleAdmin }

// CanActFor: админ действует за любого агента, агент только за себя.
func (s *Session) CanActFor(agentID string) bool {
	if s == nil {
		return false
	}
	return s.IsAdmin() || (agentID != "" && s.AgentID == agentID)
}

type claims struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(a *models.Agent) (string, *Session, error) {
	now := i.now()
	sess := &Session{
		UserID:    a.ID,
		AgentID:   a.ID,
		Role:      a.Role,
		ExpiresAt: now.Add(i.ttl).UTC().Truncate(time.Second),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		AgentID: sess.AgentID,
		Role:    sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, "sign token")
	}
	return signed, sess, nil
}

func (i *Issuer) Parse(token string) (*Session, error) {
	var c claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "invalid token")
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.After(i.now()) {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "token expired")
	}
	return &Session{
		UserID:    c.Subject,
		AgentID:   c.AgentID,
		Role:      c.Role,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// AccountSource перечитывает аккаунт на каждом запросе.
type AccountSource interface {
	Get(ctx context.Context, id string) (*models.Agent, error)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// Middleware проверяет Bearer-токен и повторно валидирует аккаунт: он должен
// по-прежнему существовать, быть одобренным и активным, а роль совпадать с токеном.
func Middleware(iss *Issuer, accounts AccountSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if raw == "" {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				httpx.WriteError(w, r, errors.Wrap(apperr.ErrUnauthorized, "missing token"))
				return
			}
			sess, err := iss.Parse(raw)
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}

			a, err := accounts.Get(r.Context(), sess.UserID)
			if errors.Is(err, apperr.ErrNotFound) {
				httpx.WriteError(w, r, errors.Wrap(apperr.ErrUnauthorized, "account gone"))
				return
			}
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}
			if a.ApprovalStatus != models.ApprovalApproved || !a.Active {
				httpx.WriteError(w, r, errors.Wrap(apperr.ErrForbidden, "account disabled"))
				return
			}
			sess.Role = a.Role

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).IsAdmin() {
			httpx.WriteError(w, r, errors.Wrap(apperr.ErrForbidden, "admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
