package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/soletrade/marketplace/internal/api"
	"github.com/soletrade/marketplace/internal/auth"
	"github.com/soletrade/marketplace/internal/book"
	"github.com/soletrade/marketplace/internal/catalog"
	"github.com/soletrade/marketplace/internal/config"
	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/engine"
	"github.com/soletrade/marketplace/internal/shipping"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// handleBookFeed streams a listing's book snapshot every few seconds until
// the client disconnects.
func handleBookFeed(b *book.Book, database *db.DB, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := strconv.Atoi(r.URL.Query().Get("product"))
		if err != nil {
			http.Error(w, "product required", http.StatusBadRequest)
			return
		}
		sizeID, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil {
			http.Error(w, "size required", http.StatusBadRequest)
			return
		}

		listing, err := database.GetListing(r.Context(), productID, sizeID)
		if err != nil {
			http.Error(w, "listing not found", http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("failed to upgrade connection")
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			snap, err := b.GetSnapshot(r.Context(), listing.ID)
			if err != nil {
				log.WithError(err).Warn("failed to load book snapshot")
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			select {
			case <-ticker.C:
			case <-r.Context().Done():
				return
			}
		}
	}
}

// Main entry point: sets up database, matching engine, and HTTP server
func main() {
	ctx := context.Background()
	cfg := config.Load()

	log := logrus.New()
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close(ctx)

	orderBook := book.New(database)
	resolver := shipping.NewResolver()
	matchingEngine := engine.New(database, orderBook, resolver, log)
	cat := catalog.New(database)
	authService := auth.NewAuthService(database, cfg.JWTSecret)

	handler := api.NewHandler(database, orderBook, matchingEngine, cat, resolver, authService, log)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", handleBookFeed(orderBook, database, log))
	handler.Routes(r)

	log.WithField("addr", cfg.ListenAddr).Info("starting server")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
