package agents_api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/BundleBox/internal/api/httpx"
	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/auth"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Service interface {
	Register(ctx context.Context, in models.AgentInput) (*models.Agent, error)
	Authenticate(ctx context.Context, email, password string) (*models.Agent, error)
	List(ctx context.Context, approvalStatus string) ([]*models.Agent, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
}

type TokenIssuer interface {
	Issue(a *models.Agent) (string, *auth.Session, error)
}

type AgentsAPI struct {
	svc    Service
	tokens TokenIssuer
}

func New(svc Service, tokens TokenIssuer) *AgentsAPI {
	return &AgentsAPI{svc: svc, tokens: tokens}
}

// PublicRoutes: регистрация и вход, без сессии.
func (a *AgentsAPI) PublicRoutes(r chi.Router) {
	r.Post("/agents", a.register)
	r.Post("/auth/login", a.login)
}

func (a *AgentsAPI) AdminRoutes(r chi.Router) {
	r.Get("/agents", a.list)
	r.Post("/agents/{id}/approve", a.approve)
	r.Post("/agents/{id}/reject", a.reject)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	IDType    string `json:"idType"`
	IDNumber  string `json:"idNumber"`
	Region    string `json:"region"`
}

type registerResponse struct {
	Success        bool   `json:"success"`
	AgentID        string `json:"agentId"`
	ApprovalStatus string `json:"approvalStatus"`
}

func (a *AgentsAPI) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ag, err := a.svc.Register(r.Context(), models.AgentInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		IDType:    req.IDType,
		IDNumber:  req.IDNumber,
		Region:    req.Region,
	})
	if errors.Is(err, apperr.ErrConflict) {
		httpx.WriteJSON(w, http.StatusConflict, httpx.ErrorBody{Error: "Profile already exists for this email"})
		return
	}
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		Success:        true,
		AgentID:        ag.ID,
		ApprovalStatus: ag.ApprovalStatus,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Role      string    `json:"role"`
	AgentID   string    `json:"agentId"`
}

func (a *AgentsAPI) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httpx.WriteError(w, r, apperr.Validation("Email and password are required", "email", "password"))
		return
	}

	ag, err := a.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	token, sess, err := a.tokens.Issue(ag)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		Role:      sess.Role,
		AgentID:   sess.AgentID,
	})
}

func (a *AgentsAPI) list(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type decisionResponse struct {
	Success bool   `json:"success"`
	AgentID string `json:"agentId"`
}

func (a *AgentsAPI) approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.Approve(r.Context(), id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, decisionResponse{Success: true, AgentID: id})
}

func (a *AgentsAPI) reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.Reject(r.Context(), id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, decisionResponse{Success: true, AgentID: id})
}
