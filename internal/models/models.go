package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side distinguishes the two halves of the book.
type Side string

const (
	SideBid Side = "bid" // buy side
	SideAsk Side = "ask" // sell side
)

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Order lifecycle states. An order is current until it is matched; pending
// means matched and awaiting settlement; history is set by the external
// settlement process and is read-only here.
const (
	StatusCurrent = "current"
	StatusPending = "pending"
	StatusHistory = "history"
)

// User represents a registered user
type User struct {
	ID           int
	Username     string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Product is a catalog entry (sneaker model)
type Product struct {
	ID           int             `json:"product_id"`
	Name         string          `json:"product_name"`
	TickerNumber string          `json:"product_ticker"`
	Color        string          `json:"color"`
	Description  string          `json:"description"`
	RetailPrice  decimal.Decimal `json:"retail_price"`
	ReleaseDate  time.Time       `json:"release_date"`
	ModelNumber  string          `json:"style"`
	ImageURL     string          `json:"image_url"`
}

// Size is a shoe size category
type Size struct {
	ID   int    `json:"size"`
	Name string `json:"sizeName"`
}

// Listing is a product+size combination, the unit of matching.
type Listing struct {
	ID        int
	ProductID int
	SizeID    int
}

// ShippingInformation is an immutable shipping profile snapshot. Identity is
// the full field tuple per user: identical submissions reuse the same row.
type ShippingInformation struct {
	ID               int       `json:"-"`
	UserID           int       `json:"-"`
	Name             string    `json:"name"`
	Country          string    `json:"country"`
	PrimaryAddress   string    `json:"primaryAddress"`
	SecondaryAddress string    `json:"secondaryAddress"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	PostalCode       string    `json:"postalCode"`
	PhoneNumber      string    `json:"phoneNumber"`
	CreatedAt        time.Time `json:"-"`
}

// Order is a bid or ask against a listing. ExpirationDate is set only while
// the order is current; MatchedAt, TotalPrice and OrderNumber are set exactly
// once, at match time.
type Order struct {
	ID             int
	Side           Side
	ListingID      int
	UserID         int
	ShippingInfoID int
	Price          decimal.Decimal
	Status         string
	ExpirationDate *time.Time
	MatchedAt      *time.Time
	TotalPrice     *decimal.Decimal
	OrderNumber    *string
	CreatedAt      time.Time
}

// Trade is the ledger row for a completed match: exactly one per (bid, ask)
// pair, immutable once created.
type Trade struct {
	ID         int       `json:"id"`
	BidID      int       `json:"bid_id"`
	AskID      int       `json:"ask_id"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Portfolio is a user-recorded purchase used for market-value reporting.
type Portfolio struct {
	ID            int
	UserID        int
	ListingID     int
	PurchaseDate  time.Time
	PurchasePrice decimal.Decimal
}
