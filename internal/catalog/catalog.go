// Package catalog serves the read-side product views: browse listings with
// their lowest asking price, per-size market stats derived from settled
// (history) asks, and user portfolios.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Catalog struct {
	DB *db.DB
}

func New(database *db.DB) *Catalog {
	return &Catalog{DB: database}
}

// ProductSummary is one row of the browse view. Price is the lowest current
// ask across the product's sizes, zero when nothing is on offer.
type ProductSummary struct {
	ProductID int             `json:"productId"`
	Name      string          `json:"productName"`
	Image     string          `json:"productImage"`
	Price     decimal.Decimal `json:"price"`
}

// ListFilter narrows the browse view.
type ListFilter struct {
	LowestPrice  *decimal.Decimal
	HighestPrice *decimal.Decimal
	SizeID       int
	Limit        int
	Offset       int
}

// ListProducts returns the browse view, filtered by min-ask price range and
// size.
func (c *Catalog) ListProducts(ctx context.Context, f ListFilter) ([]ProductSummary, error) {
	query := `
		SELECT p.id, p.name, p.image_url,
		       COALESCE(MIN(o.price), 0) AS min_price
		FROM products p
		LEFT JOIN listings l ON l.product_id = p.id
		LEFT JOIN orders o ON o.listing_id = l.id AND o.side = 'ask' AND o.status = 'current'
		      AND (o.expiration_date IS NULL OR o.expiration_date > now())`
	args := []any{}
	if f.SizeID > 0 {
		args = append(args, f.SizeID)
		query += fmt.Sprintf(" WHERE l.size_id = $%d", len(args))
	}
	query += " GROUP BY p.id, p.name, p.image_url"

	having := ""
	if f.LowestPrice != nil {
		args = append(args, *f.LowestPrice)
		having = fmt.Sprintf(" HAVING MIN(o.price) >= $%d", len(args))
	}
	if f.HighestPrice != nil {
		args = append(args, *f.HighestPrice)
		if having == "" {
			having = fmt.Sprintf(" HAVING MIN(o.price) <= $%d", len(args))
		} else {
			having += fmt.Sprintf(" AND MIN(o.price) <= $%d", len(args))
		}
	}
	query += having + " ORDER BY p.id"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := c.DB.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []ProductSummary
	for rows.Next() {
		var p ProductSummary
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Image, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListSizes returns the size categories for the browse filters.
func (c *Catalog) ListSizes(ctx context.Context) ([]models.Size, error) {
	rows, err := c.DB.Pool.Query(ctx, "SELECT id, name FROM sizes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list sizes: %w", err)
	}
	defer rows.Close()

	var sizes []models.Size
	for rows.Next() {
		var s models.Size
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan size: %w", err)
		}
		sizes = append(sizes, s)
	}
	return sizes, rows.Err()
}

// Sale is one settled trade in a size's sales history.
type Sale struct {
	SalePrice decimal.Decimal `json:"sale_price"`
	Date      string          `json:"date_time"`
	Time      string          `json:"time"`
}

// SizeStats aggregates a size's market data from settled asks.
type SizeStats struct {
	SizeID           int             `json:"size_id"`
	SizeName         string          `json:"size_name"`
	LastSale         decimal.Decimal `json:"last_sale"`
	PriceChange      decimal.Decimal `json:"price_change"`
	LowestAsk        decimal.Decimal `json:"lowest_ask"`
	HighestBid       decimal.Decimal `json:"highest_bid"`
	TotalSales       int             `json:"total_sales"`
	AverageSalePrice decimal.Decimal `json:"average_sale_price"`
	PricePremium     decimal.Decimal `json:"price_premium"`
	SalesHistory     []Sale          `json:"sales_history"`
}

// ProductDetail is the full product page payload.
type ProductDetail struct {
	models.Product
	Sizes []SizeStats `json:"sizes"`
}

// GetProduct returns the detail view, or db.ErrNotFound.
func (c *Catalog) GetProduct(ctx context.Context, productID int) (*ProductDetail, error) {
	detail := &ProductDetail{}
	err := c.DB.Pool.QueryRow(ctx, `
		SELECT id, name, ticker_number, color, description, retail_price, release_date, model_number, image_url
		FROM products WHERE id = $1`, productID).Scan(
		&detail.ID, &detail.Name, &detail.TickerNumber, &detail.Color, &detail.Description,
		&detail.RetailPrice, &detail.ReleaseDate, &detail.ModelNumber, &detail.ImageURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	rows, err := c.DB.Pool.Query(ctx, `
		SELECT l.id, l.size_id, s.name
		FROM listings l JOIN sizes s ON s.id = l.size_id
		WHERE l.product_id = $1
		ORDER BY l.size_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product sizes: %w", err)
	}
	defer rows.Close()

	type listingRow struct {
		listingID int
		sizeID    int
		sizeName  string
	}
	var listings []listingRow
	for rows.Next() {
		var lr listingRow
		if err := rows.Scan(&lr.listingID, &lr.sizeID, &lr.sizeName); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, lr := range listings {
		stats, err := c.sizeStats(ctx, lr.listingID, detail.RetailPrice)
		if err != nil {
			return nil, err
		}
		stats.SizeID = lr.sizeID
		stats.SizeName = lr.sizeName
		detail.Sizes = append(detail.Sizes, *stats)
	}
	return detail, nil
}

func (c *Catalog) sizeStats(ctx context.Context, listingID int, retail decimal.Decimal) (*SizeStats, error) {
	stats := &SizeStats{
		LastSale:         decimal.Zero,
		PriceChange:      decimal.Zero,
		LowestAsk:        decimal.Zero,
		HighestBid:       decimal.Zero,
		AverageSalePrice: decimal.Zero,
		PricePremium:     decimal.Zero,
	}

	err := c.DB.Pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT MIN(price) FROM orders
		                 WHERE listing_id = $1 AND side = 'ask' AND status = 'current'
		                   AND (expiration_date IS NULL OR expiration_date > now())), 0),
		       COALESCE((SELECT MAX(price) FROM orders
		                 WHERE listing_id = $1 AND side = 'bid' AND status = 'current'
		                   AND (expiration_date IS NULL OR expiration_date > now())), 0),
		       (SELECT COUNT(*) FROM orders WHERE listing_id = $1 AND side = 'ask' AND status = 'history'),
		       COALESCE((SELECT AVG(price) FROM orders WHERE listing_id = $1 AND side = 'ask' AND status = 'history'), 0)`,
		listingID).Scan(&stats.LowestAsk, &stats.HighestBid, &stats.TotalSales, &stats.AverageSalePrice)
	if err != nil {
		return nil, fmt.Errorf("failed to get size stats: %w", err)
	}

	rows, err := c.DB.Pool.Query(ctx, `
		SELECT price, matched_at FROM orders
		WHERE listing_id = $1 AND side = 'ask' AND status = 'history' AND matched_at IS NOT NULL
		ORDER BY matched_at DESC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales history: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var price decimal.Decimal
		var matchedAt time.Time
		if err := rows.Scan(&price, &matchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		prices = append(prices, price)
		stats.SalesHistory = append(stats.SalesHistory, Sale{
			SalePrice: price,
			Date:      matchedAt.Format("2006-01-02"),
			Time:      matchedAt.Format("15:04"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(prices) > 0 {
		stats.LastSale = prices[0]
		if !retail.IsZero() {
			stats.PricePremium = prices[0].Sub(retail).Div(retail).Mul(decimal.NewFromInt(100)).Round(0)
		}
	}
	if len(prices) > 1 {
		stats.PriceChange = prices[0].Sub(prices[1])
	}
	return stats, nil
}

// PortfolioItem is one row of the portfolio view: a recorded purchase with
// the listing's current market value (average settled ask price).
type PortfolioItem struct {
	Name          string          `json:"name"`
	Size          string          `json:"size"`
	PurchaseDate  string          `json:"purchase_date"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
}

// AddPortfolio records a purchase dated to the last day of the given month.
func (c *Catalog) AddPortfolio(ctx context.Context, userID, productID, sizeID, year int, month time.Month, price decimal.Decimal) (*models.Portfolio, error) {
	listing, err := c.DB.GetListing(ctx, productID, sizeID)
	if err != nil {
		return nil, err
	}

	// day 0 of the next month is the last day of this one
	purchaseDate := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)

	p := &models.Portfolio{}
	err = c.DB.Pool.QueryRow(ctx, `
		INSERT INTO portfolios (user_id, listing_id, purchase_date, purchase_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, listing_id, purchase_date, purchase_price`,
		userID, listing.ID, purchaseDate, price).Scan(
		&p.ID, &p.UserID, &p.ListingID, &p.PurchaseDate, &p.PurchasePrice)
	if err != nil {
		return nil, fmt.Errorf("failed to add portfolio entry: %w", err)
	}
	return p, nil
}

// GetPortfolio returns the user's recorded purchases with market values.
func (c *Catalog) GetPortfolio(ctx context.Context, userID int) ([]PortfolioItem, error) {
	rows, err := c.DB.Pool.Query(ctx, `
		SELECT p.name, s.name, pf.purchase_date, pf.purchase_price,
		       COALESCE((SELECT AVG(o.price) FROM orders o
		                 WHERE o.listing_id = pf.listing_id AND o.side = 'ask' AND o.status = 'history'), 0)
		FROM portfolios pf
		JOIN listings l ON l.id = pf.listing_id
		JOIN products p ON p.id = l.product_id
		JOIN sizes s ON s.id = l.size_id
		WHERE pf.user_id = $1
		ORDER BY pf.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	defer rows.Close()

	var items []PortfolioItem
	for rows.Next() {
		var item PortfolioItem
		var purchaseDate time.Time
		if err := rows.Scan(&item.Name, &item.Size, &purchaseDate, &item.PurchasePrice, &item.MarketValue); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio item: %w", err)
		}
		item.PurchaseDate = purchaseDate.Format("2006/01/02")
		items = append(items, item)
	}
	return items, rows.Err()
}
