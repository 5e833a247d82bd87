// Package book is the per-listing view over standing current orders: highest
// bid, lowest ask. Ties at the same price go to the earlier order (lower id).
// Expired orders are filtered out at query time; no sweep demotes them.
package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Book answers best-price queries for a listing. Reads run outside any lock;
// LockBest is the transactional variant the matching engine uses to claim a
// resting order.
type Book struct {
	DB *db.DB
}

func New(database *db.DB) *Book {
	return &Book{DB: database}
}

// Snapshot is the display view of a listing's book.
type Snapshot struct {
	HighestBid decimal.Decimal `json:"highestBid"`
	LowestAsk  decimal.Decimal `json:"lowestAsk"`
}

const bestOrderQuery = `
	SELECT id, side, listing_id, user_id, shipping_information_id, price, status,
	       expiration_date, matched_at, total_price, order_number, created_at
	FROM orders
	WHERE listing_id = $1 AND side = $2 AND status = 'current'
	  AND (expiration_date IS NULL OR expiration_date > now())
	ORDER BY price %s, id ASC
	LIMIT 1`

func (b *Book) best(ctx context.Context, q db.Querier, listingID int, side models.Side, suffix string) (*models.Order, error) {
	direction := "ASC"
	if side == models.SideBid {
		direction = "DESC"
	}
	o := &models.Order{}
	err := q.QueryRow(ctx, fmt.Sprintf(bestOrderQuery, direction)+suffix, listingID, side).Scan(
		&o.ID, &o.Side, &o.ListingID, &o.UserID, &o.ShippingInfoID,
		&o.Price, &o.Status, &o.ExpirationDate, &o.MatchedAt, &o.TotalPrice,
		&o.OrderNumber, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get best %s: %w", side, err)
	}
	return o, nil
}

// BestBid returns the highest-priced current bid, or db.ErrNotFound.
func (b *Book) BestBid(ctx context.Context, listingID int) (*models.Order, error) {
	return b.best(ctx, b.DB.Pool, listingID, models.SideBid, "")
}

// BestAsk returns the lowest-priced current ask, or db.ErrNotFound.
func (b *Book) BestAsk(ctx context.Context, listingID int) (*models.Order, error) {
	return b.best(ctx, b.DB.Pool, listingID, models.SideAsk, "")
}

// LockBest selects and row-locks the best current order on a side. Under
// concurrent matches the loser's candidate stops satisfying status='current'
// once the winner commits, so the query comes back empty and the caller
// reports no matching order.
func (b *Book) LockBest(ctx context.Context, tx pgx.Tx, listingID int, side models.Side) (*models.Order, error) {
	return b.best(ctx, tx, listingID, side, " FOR UPDATE")
}

// GetSnapshot returns the display prices for a listing; zero when a side of
// the book is empty.
func (b *Book) GetSnapshot(ctx context.Context, listingID int) (*Snapshot, error) {
	snap := &Snapshot{HighestBid: decimal.Zero, LowestAsk: decimal.Zero}

	bid, err := b.BestBid(ctx, listingID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if bid != nil {
		snap.HighestBid = bid.Price
	}

	ask, err := b.BestAsk(ctx, listingID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if ask != nil {
		snap.LowestAsk = ask.Price
	}

	return snap, nil
}
