package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Subscription struct {
	UUID              uuid.UUID      `db:"uuid" json:"uuid"`
	StripeID          string         `db:"stripe_id" json:"stripe_id"`
	UserUUID          uuid.UUID      `db:"user_uuid" json:"-"`
	Status            string         `db:"status" json:"status"`
	PriceID           sql.NullString `db:"price_id" json:"price_id"`
	CurrentPeriodEnd  sql.NullTime   `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd bool           `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
