// Package shipping resolves shipping profiles with get-or-create semantics:
// a submission whose fields exactly match an existing record for the same
// user reuses that record. Profiles are never updated in place.
package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/models"

	"github.com/jackc/pgx/v5"
)

// Fields is the caller-supplied shipping profile. SecondaryAddress and State
// are optional; everything else is required and validated upstream.
type Fields struct {
	Name             string
	Country          string
	PrimaryAddress   string
	SecondaryAddress string
	City             string
	State            string
	PostalCode       string
	PhoneNumber      string
}

// Resolver deduplicates shipping profiles per user.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the existing record matching every field for this user, or
// creates one. Runs against q so the matching engine can call it inside its
// transaction. Optional fields compare NULL-safe: empty string means absent.
func (r *Resolver) Resolve(ctx context.Context, q db.Querier, userID int, f Fields) (*models.ShippingInformation, error) {
	info := &models.ShippingInformation{}
	err := q.QueryRow(ctx, `
		SELECT id, user_id, name, country, primary_address, COALESCE(secondary_address, ''),
		       city, COALESCE(state, ''), postal_code, phone_number, created_at
		FROM shipping_information
		WHERE user_id = $1 AND name = $2 AND country = $3 AND primary_address = $4
		  AND secondary_address IS NOT DISTINCT FROM NULLIF($5, '')
		  AND city = $6 AND state IS NOT DISTINCT FROM NULLIF($7, '')
		  AND postal_code = $8 AND phone_number = $9
		ORDER BY id
		LIMIT 1`,
		userID, f.Name, f.Country, f.PrimaryAddress, f.SecondaryAddress,
		f.City, f.State, f.PostalCode, f.PhoneNumber).Scan(
		&info.ID, &info.UserID, &info.Name, &info.Country, &info.PrimaryAddress,
		&info.SecondaryAddress, &info.City, &info.State, &info.PostalCode,
		&info.PhoneNumber, &info.CreatedAt)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up shipping information: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO shipping_information
		    (user_id, name, country, primary_address, secondary_address, city, state, postal_code, phone_number)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)
		RETURNING id, user_id, name, country, primary_address, COALESCE(secondary_address, ''),
		          city, COALESCE(state, ''), postal_code, phone_number, created_at`,
		userID, f.Name, f.Country, f.PrimaryAddress, f.SecondaryAddress,
		f.City, f.State, f.PostalCode, f.PhoneNumber).Scan(
		&info.ID, &info.UserID, &info.Name, &info.Country, &info.PrimaryAddress,
		&info.SecondaryAddress, &info.City, &info.State, &info.PostalCode,
		&info.PhoneNumber, &info.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create shipping information: %w", err)
	}
	return info, nil
}

// Latest returns the user's most recent shipping profile, used to prefill the
// buy/sell forms. Returns db.ErrNotFound if the user has none.
func (r *Resolver) Latest(ctx context.Context, q db.Querier, userID int) (*models.ShippingInformation, error) {
	info := &models.ShippingInformation{}
	err := q.QueryRow(ctx, `
		SELECT id, user_id, name, country, primary_address, COALESCE(secondary_address, ''),
		       city, COALESCE(state, ''), postal_code, phone_number, created_at
		FROM shipping_information
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT 1`, userID).Scan(
		&info.ID, &info.UserID, &info.Name, &info.Country, &info.PrimaryAddress,
		&info.SecondaryAddress, &info.City, &info.State, &info.PostalCode,
		&info.PhoneNumber, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest shipping information: %w", err)
	}
	return info, nil
}
