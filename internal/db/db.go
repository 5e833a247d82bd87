package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soletrade/marketplace/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so queries can run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Begin starts a transaction on the pool.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.Pool.Begin(ctx)
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, name, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, name, password_hash) VALUES ($1, $2, $3) RETURNING id, username, name, password_hash, created_at",
		username, name, passwordHash).Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, name, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetListing resolves a product+size combination.
func (db *DB) GetListing(ctx context.Context, productID, sizeID int) (*models.Listing, error) {
	l := &models.Listing{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, product_id, size_id FROM listings WHERE product_id = $1 AND size_id = $2",
		productID, sizeID).Scan(&l.ID, &l.ProductID, &l.SizeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

const orderColumns = "id, side, listing_id, user_id, shipping_information_id, price, status, expiration_date, matched_at, total_price, order_number, created_at"

func scanOrder(row pgx.Row, o *models.Order) error {
	return row.Scan(&o.ID, &o.Side, &o.ListingID, &o.UserID, &o.ShippingInfoID,
		&o.Price, &o.Status, &o.ExpirationDate, &o.MatchedAt, &o.TotalPrice,
		&o.OrderNumber, &o.CreatedAt)
}

// CreateStandingOrder inserts a current order with an expiration.
func (db *DB) CreateStandingOrder(ctx context.Context, q Querier, o *models.Order) (*models.Order, error) {
	created := &models.Order{}
	err := scanOrder(q.QueryRow(ctx,
		"INSERT INTO orders (side, listing_id, user_id, shipping_information_id, price, status, expiration_date) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+orderColumns,
		o.Side, o.ListingID, o.UserID, o.ShippingInfoID, o.Price, models.StatusCurrent, o.ExpirationDate), created)
	if err != nil {
		return nil, fmt.Errorf("failed to create standing order: %w", err)
	}
	return created, nil
}

// CreateMatchedOrder inserts an order already in pending state (immediate
// execution). The order number is assigned afterwards since it needs the id.
func (db *DB) CreateMatchedOrder(ctx context.Context, q Querier, o *models.Order) (*models.Order, error) {
	created := &models.Order{}
	err := scanOrder(q.QueryRow(ctx,
		"INSERT INTO orders (side, listing_id, user_id, shipping_information_id, price, status, matched_at, total_price) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "+orderColumns,
		o.Side, o.ListingID, o.UserID, o.ShippingInfoID, o.Price, models.StatusPending, o.MatchedAt, o.TotalPrice), created)
	if err != nil {
		return nil, fmt.Errorf("failed to create matched order: %w", err)
	}
	return created, nil
}

// SetOrderNumber assigns the order number, exactly once.
func (db *DB) SetOrderNumber(ctx context.Context, q Querier, orderID int, number string) error {
	tag, err := q.Exec(ctx,
		"UPDATE orders SET order_number = $1 WHERE id = $2 AND order_number IS NULL",
		number, orderID)
	if err != nil {
		return fmt.Errorf("failed to set order number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d already numbered", orderID)
	}
	return nil
}

// MarkOrderMatched transitions a resting order to pending, stamping the
// execution total price (the incoming order's, per price-taker convention),
// match time and order number.
func (db *DB) MarkOrderMatched(ctx context.Context, q Querier, orderID int, totalPrice decimal.Decimal, matchedAt time.Time, number string) error {
	tag, err := q.Exec(ctx,
		"UPDATE orders SET status = $1, total_price = $2, matched_at = $3, order_number = $4, expiration_date = NULL "+
			"WHERE id = $5 AND status = $6",
		models.StatusPending, totalPrice, matchedAt, number, orderID, models.StatusCurrent)
	if err != nil {
		return fmt.Errorf("failed to mark order matched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d no longer current", orderID)
	}
	return nil
}

// GetOrder retrieves one order by id.
func (db *DB) GetOrder(ctx context.Context, orderID int) (*models.Order, error) {
	o := &models.Order{}
	err := scanOrder(db.Pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID), o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// UserOrderSummary is one row of the buying/selling status views.
type UserOrderSummary struct {
	OrderID     int             `json:"-"`
	ProductName string          `json:"name"`
	SizeName    string          `json:"size"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	HighestBid  decimal.Decimal `json:"highestBid"`
	LowestAsk   decimal.Decimal `json:"lowestAsk"`
	Expires     *time.Time      `json:"-"`
	OrderNumber *string         `json:"orderNumber,omitempty"`
	MatchedAt   *time.Time      `json:"-"`
}

// GetUserOrders retrieves a user's orders on one side in one status, newest
// first, with per-listing best prices for the current view.
func (db *DB) GetUserOrders(ctx context.Context, userID int, side models.Side, status string) ([]UserOrderSummary, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT o.id, p.name, s.name, p.image_url, o.price,
		       COALESCE((SELECT MAX(b.price) FROM orders b
		                 WHERE b.listing_id = o.listing_id AND b.side = 'bid' AND b.status = 'current'
		                   AND (b.expiration_date IS NULL OR b.expiration_date > now())), 0),
		       COALESCE((SELECT MIN(a.price) FROM orders a
		                 WHERE a.listing_id = o.listing_id AND a.side = 'ask' AND a.status = 'current'
		                   AND (a.expiration_date IS NULL OR a.expiration_date > now())), 0),
		       o.expiration_date, o.order_number, o.matched_at
		FROM orders o
		JOIN listings l ON l.id = o.listing_id
		JOIN products p ON p.id = l.product_id
		JOIN sizes s ON s.id = l.size_id
		WHERE o.user_id = $1 AND o.side = $2 AND o.status = $3
		ORDER BY o.id DESC`,
		userID, side, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()

	var summaries []UserOrderSummary
	for rows.Next() {
		var s UserOrderSummary
		if err := rows.Scan(&s.OrderID, &s.ProductName, &s.SizeName, &s.Image, &s.Price,
			&s.HighestBid, &s.LowestAsk, &s.Expires, &s.OrderNumber, &s.MatchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CreateTrade inserts the ledger row linking one bid to one ask.
func (db *DB) CreateTrade(ctx context.Context, q Querier, bidID, askID int) (*models.Trade, error) {
	trade := &models.Trade{}
	err := q.QueryRow(ctx,
		"INSERT INTO trades (bid_id, ask_id) VALUES ($1, $2) RETURNING id, bid_id, ask_id, executed_at",
		bidID, askID).Scan(&trade.ID, &trade.BidID, &trade.AskID, &trade.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return trade, nil
}

// GetTradeForOrder retrieves the ledger row an order participates in.
func (db *DB) GetTradeForOrder(ctx context.Context, orderID int) (*models.Trade, error) {
	trade := &models.Trade{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, bid_id, ask_id, executed_at FROM trades WHERE bid_id = $1 OR ask_id = $1",
		orderID).Scan(&trade.ID, &trade.BidID, &trade.AskID, &trade.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}
