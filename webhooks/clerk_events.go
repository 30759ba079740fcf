package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ClerkEvent is the envelope Clerk delivers for user lifecycle changes.
type ClerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkUser struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
}

func (u clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// ClerkProcessor mirrors identity-provider user lifecycle into the users
// table. New accounts start on the free limit; deletion cascades to the
// user's tones and subscriptions.
type ClerkProcessor struct {
	DB        *sql.DB
	Logger    *zap.Logger
	FreeLimit int
}

func NewClerkProcessor(db *sql.DB, logger *zap.Logger, freeLimit int) *ClerkProcessor {
	return &ClerkProcessor{DB: db, Logger: logger, FreeLimit: freeLimit}
}

func (p *ClerkProcessor) Apply(ctx context.Context, event ClerkEvent) error {
	switch event.Type {
	case "user.created":
		return p.handleUserCreated(ctx, event)
	case "user.updated":
		return p.handleUserUpdated(ctx, event)
	case "user.deleted":
		return p.handleUserDeleted(ctx, event)
	default:
		p.Logger.Debug("ignoring clerk event", zap.String("type", event.Type))
		return nil
	}
}

func (p *ClerkProcessor) handleUserCreated(ctx context.Context, event ClerkEvent) error {
	var u clerkUser
	if err := json.Unmarshal(event.Data, &u); err != nil {
		return fmt.Errorf("failed to parse user.created: %w", err)
	}
	if u.ID == "" {
		return fmt.Errorf("user.created missing clerk id")
	}

	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO users (clerk_id, email, generations_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (clerk_id) DO NOTHING
	`, u.ID, u.primaryEmail(), p.FreeLimit)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	p.Logger.Info("user created", zap.String("clerk_id", u.ID))
	return nil
}

func (p *ClerkProcessor) handleUserUpdated(ctx context.Context, event ClerkEvent) error {
	var u clerkUser
	if err := json.Unmarshal(event.Data, &u); err != nil {
		return fmt.Errorf("failed to parse user.updated: %w", err)
	}

	res, err := p.DB.ExecContext(ctx, `
		UPDATE users SET email = $1, updated_at = now() WHERE clerk_id = $2
	`, u.primaryEmail(), u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.Logger.Warn("user.updated for unknown user", zap.String("clerk_id", u.ID))
	}
	return nil
}

func (p *ClerkProcessor) handleUserDeleted(ctx context.Context, event ClerkEvent) error {
	var u clerkUser
	if err := json.Unmarshal(event.Data, &u); err != nil {
		return fmt.Errorf("failed to parse user.deleted: %w", err)
	}

	// Tones and subscriptions go with the row via ON DELETE CASCADE.
	_, err := p.DB.ExecContext(ctx, `
		DELETE FROM users WHERE clerk_id = $1
	`, u.ID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	p.Logger.Info("user deleted", zap.String("clerk_id", u.ID))
	return nil
}
