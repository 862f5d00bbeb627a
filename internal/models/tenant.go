package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus is the stored billing state of a tenant
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"

	// SubscriptionExpired is never stored. It is reported when an active
	// subscription has passed its end date.
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Tenant represents a repair shop account
type Tenant struct {
	ID        uuid.UUID `json:"tenant_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	ServiceName string `json:"service_name" db:"service_name"`
	OwnerName   string `json:"owner_name" db:"owner_name"`
	Email       string `json:"email" db:"email"`
	Phone       string `json:"phone" db:"phone"`

	SubscriptionStatus  SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	SubscriptionPlan    string             `json:"subscription_plan" db:"subscription_plan"`
	SubscriptionPrice   decimal.Decimal    `json:"subscription_price" db:"subscription_price"`
	SubscriptionEndDate time.Time          `json:"subscription_end_date" db:"subscription_end_date"`
	IsTrial             bool               `json:"is_trial" db:"is_trial"`

	AIEnabled bool `json:"ai_enabled" db:"ai_enabled"`
}

// PlanLimits caps what a tenant may create under its plan
type PlanLimits struct {
	Locations int  `json:"locations"`
	Employees int  `json:"employees"`
	HasAI     bool `json:"has_ai"`
}

// SubscriptionPlan is an entry of the platform plan catalog
type SubscriptionPlan struct {
	ID        uuid.UUID `json:"plan_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	Price        decimal.Decimal `json:"price" db:"price"`
	DurationDays int             `json:"duration_days" db:"duration_days"`
	Limits       PlanLimits      `json:"plan_limits"`
	IsActive     bool            `json:"is_active" db:"is_active"`
}

// Payment is a billing history record
type Payment struct {
	ID        uuid.UUID       `json:"payment_id" db:"id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	TenantID  uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	Plan      string          `json:"plan" db:"plan"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    string          `json:"status" db:"status"`
	Note      string          `json:"note,omitempty" db:"note"`
}

// Location is a physical shop of a tenant
type Location struct {
	ID        uuid.UUID `json:"location_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`

	Name    string `json:"location_name" db:"name"`
	Address string `json:"address" db:"address"`
	Phone   string `json:"phone" db:"phone"`
}
