package main

import (
	"context"
	"fmt"
	"os"

	"github.com/soletrade/marketplace/internal/config"
	"github.com/soletrade/marketplace/internal/db"

	"github.com/sirupsen/logrus"
)

// Seed the database with test data: a few products, sizes, listings and users.
func main() {
	ctx := context.Background()
	cfg := config.Load()
	log := logrus.New()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close(ctx)

	var productCount int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&productCount); err != nil {
		log.WithError(err).Fatal("failed to check products")
	}
	if productCount > 0 {
		fmt.Printf("Database already has %d products. No need to seed.\n", productCount)
		os.Exit(0)
	}

	products := []struct {
		name, ticker, color, model, image string
		retail                            int
		release                           string
	}{
		{"Air Jordan 1 Retro High OG Chicago", "AJ1-CHI", "Varsity Red/Black", "555088-101", "https://img.example.com/aj1-chicago.png", 180, "2015-05-30"},
		{"Yeezy Boost 350 V2 Zebra", "YZY-ZBR", "White/Core Black/Red", "CP9654", "https://img.example.com/yzy-zebra.png", 220, "2017-02-25"},
		{"Nike Dunk Low Panda", "DNK-PND", "White/Black", "DD1391-100", "https://img.example.com/dunk-panda.png", 110, "2021-03-10"},
	}

	for _, p := range products {
		_, err := database.Pool.Exec(ctx, `
			INSERT INTO products (name, ticker_number, color, description, retail_price, release_date, model_number, image_url)
			VALUES ($1, $2, $3, '', $4, $5, $6, $7)`,
			p.name, p.ticker, p.color, p.retail, p.release, p.model, p.image)
		if err != nil {
			log.WithError(err).Fatal("failed to seed product")
		}
	}

	for _, size := range []string{"250", "260", "270", "280", "290"} {
		if _, err := database.Pool.Exec(ctx, "INSERT INTO sizes (name) VALUES ($1)", size); err != nil {
			log.WithError(err).Fatal("failed to seed size")
		}
	}

	// every product in every size
	if _, err := database.Pool.Exec(ctx, `
		INSERT INTO listings (product_id, size_id)
		SELECT p.id, s.id FROM products p CROSS JOIN sizes s`); err != nil {
		log.WithError(err).Fatal("failed to seed listings")
	}

	// password for both users is "password"
	const hash = "$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G."
	for _, u := range []struct{ username, name string }{
		{"buyer1", "Test Buyer"},
		{"seller1", "Test Seller"},
	} {
		if _, err := database.Pool.Exec(ctx,
			"INSERT INTO users (username, name, password_hash) VALUES ($1, $2, $3) ON CONFLICT (username) DO NOTHING",
			u.username, u.name, hash); err != nil {
			log.WithError(err).Fatal("failed to seed user")
		}
	}

	fmt.Println("Seeded products, sizes, listings and users.")
}
