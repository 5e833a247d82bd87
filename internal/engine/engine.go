// Package engine holds the order-lifecycle state machine. A standing offer is
// inserted as a current order with an expiration and never touches the book.
// An immediate execution claims the best opposing current order, moves both
// legs to pending with the incoming order's total price, stamps the order
// numbers and writes the ledger row, all inside one transaction.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/soletrade/marketplace/internal/book"
	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/models"
	"github.com/soletrade/marketplace/internal/ordernum"
	"github.com/soletrade/marketplace/internal/shipping"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine matches incoming orders against the book.
type Engine struct {
	DB       *db.DB
	Book     *book.Book
	Shipping *shipping.Resolver
	Log      *logrus.Logger
}

func New(database *db.DB, b *book.Book, resolver *shipping.Resolver, log *logrus.Logger) *Engine {
	return &Engine{DB: database, Book: b, Shipping: resolver, Log: log}
}

// Submission carries one order request. ExpirationDays applies to standing
// offers, TotalPrice to immediate executions.
type Submission struct {
	Price          decimal.Decimal
	Shipping       shipping.Fields
	ExpirationDays int
	TotalPrice     decimal.Decimal
}

func (e *Engine) resolveListing(ctx context.Context, productID, sizeID int) (*models.Listing, error) {
	listing, err := e.DB.GetListing(ctx, productID, sizeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, internalErr(err)
	}
	return listing, nil
}

func validateShipping(f shipping.Fields) error {
	// secondary address and state are optional
	if f.Name == "" || f.Country == "" || f.PrimaryAddress == "" ||
		f.City == "" || f.PostalCode == "" || f.PhoneNumber == "" {
		return ErrMissingField
	}
	return nil
}

// SubmitStanding opens a current order at the submitted price, expiring after
// ExpirationDays. No matching is attempted for a standing offer.
func (e *Engine) SubmitStanding(ctx context.Context, side models.Side, productID, sizeID, userID int, sub Submission) (*models.Order, error) {
	if sub.Price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidValue
	}
	if err := validateShipping(sub.Shipping); err != nil {
		return nil, err
	}
	if sub.ExpirationDays <= 0 {
		return nil, ErrMissingField
	}

	listing, err := e.resolveListing(ctx, productID, sizeID)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, internalErr(err)
	}
	defer tx.Rollback(ctx)

	info, err := e.Shipping.Resolve(ctx, tx, userID, sub.Shipping)
	if err != nil {
		return nil, internalErr(err)
	}

	expires := time.Now().AddDate(0, 0, sub.ExpirationDays)
	order, err := e.DB.CreateStandingOrder(ctx, tx, &models.Order{
		Side:           side,
		ListingID:      listing.ID,
		UserID:         userID,
		ShippingInfoID: info.ID,
		Price:          sub.Price,
		ExpirationDate: &expires,
	})
	if err != nil {
		return nil, internalErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr(err)
	}

	e.Log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"side":     side,
		"listing":  listing.ID,
		"price":    sub.Price,
	}).Info("standing order opened")

	return order, nil
}

// SubmitImmediate executes against the best opposing current order. The
// counterparty is locked and claimed before the incoming order is persisted,
// so a failed execution leaves no partial state behind.
func (e *Engine) SubmitImmediate(ctx context.Context, side models.Side, productID, sizeID, userID int, sub Submission) (*models.Order, error) {
	if sub.Price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidValue
	}
	if err := validateShipping(sub.Shipping); err != nil {
		return nil, err
	}
	if sub.TotalPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrMissingField
	}

	listing, err := e.resolveListing(ctx, productID, sizeID)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, internalErr(err)
	}
	defer tx.Rollback(ctx)

	info, err := e.Shipping.Resolve(ctx, tx, userID, sub.Shipping)
	if err != nil {
		return nil, internalErr(err)
	}

	opposite := side.Opposite()
	resting, err := e.Book.LockBest(ctx, tx, listing.ID, opposite)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, noMatchingOrder(opposite)
		}
		return nil, internalErr(err)
	}

	matchedAt := time.Now()
	totalPrice := sub.TotalPrice

	incoming, err := e.DB.CreateMatchedOrder(ctx, tx, &models.Order{
		Side:           side,
		ListingID:      listing.ID,
		UserID:         userID,
		ShippingInfoID: info.ID,
		Price:          sub.Price,
		MatchedAt:      &matchedAt,
		TotalPrice:     &totalPrice,
	})
	if err != nil {
		return nil, internalErr(err)
	}

	number := ordernum.Generate(side, matchedAt, incoming.ID)
	if err := e.DB.SetOrderNumber(ctx, tx, incoming.ID, number); err != nil {
		return nil, internalErr(err)
	}
	incoming.OrderNumber = &number

	// The resting leg takes the incoming order's total price.
	restingNumber := ordernum.Generate(opposite, matchedAt, resting.ID)
	if err := e.DB.MarkOrderMatched(ctx, tx, resting.ID, totalPrice, matchedAt, restingNumber); err != nil {
		return nil, conflictErr(err)
	}

	bidID, askID := incoming.ID, resting.ID
	if side == models.SideAsk {
		bidID, askID = resting.ID, incoming.ID
	}
	trade, err := e.DB.CreateTrade(ctx, tx, bidID, askID)
	if err != nil {
		return nil, internalErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr(err)
	}

	e.Log.WithFields(logrus.Fields{
		"trade_id":    trade.ID,
		"bid_id":      bidID,
		"ask_id":      askID,
		"listing":     listing.ID,
		"total_price": totalPrice,
	}).Info("orders matched")

	return incoming, nil
}
