package models

import "time"

const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

type Agent struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Phone          string    `json:"phone"`
	Role           string    `json:"role"`
	IDType         string    `json:"idType,omitempty"`
	IDNumber       string    `json:"idNumber,omitempty"`
	Region         string    `json:"region,omitempty"`
	ApprovalStatus string    `json:"approvalStatus"`
	Active         bool      `json:"active"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (a *Agent) DisplayName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

type AgentInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      string
	IDType    string
	IDNumber  string
	Region    string
}
