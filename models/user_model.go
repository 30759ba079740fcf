package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	UUID             uuid.UUID      `db:"uuid" json:"uuid"`
	ClerkID          string         `db:"clerk_id" json:"-"`
	Email            string         `db:"email" json:"email"`
	GenerationsUsed  int            `db:"generations_used" json:"generations_used"`
	GenerationsLimit int            `db:"generations_limit" json:"generations_limit"`
	StripeCustomerID sql.NullString `db:"stripe_customer_id" json:"-"`
	LastResetDate    sql.NullTime   `db:"last_reset_date" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// UserProfile is the shape returned to the frontend profile page.
type UserProfile struct {
	UUID             uuid.UUID `json:"uuid"`
	Email            string    `json:"email"`
	Plan             string    `json:"plan"`
	GenerationsUsed  int       `json:"generations_used"`
	GenerationsLimit int       `json:"generations_limit"`
	CreatedAt        time.Time `json:"created_at"`
}
