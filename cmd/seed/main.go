package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"grocery-service/config"
	"grocery-service/internal/auth"
	"grocery-service/internal/seed"
	"grocery-service/internal/store"
	"grocery-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	clearOrders := flag.Bool("orders", false, "also delete every order")
	adminID := flag.String("admin", "admin", "user id to mint an admin token for")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Database.InMemory() {
		log.Fatal("DATABASE_URL must point at Postgres to seed")
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Log.File, cfg.Log.MaxSizeMB); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	result, err := seed.Run(ctx, db, db, db, *clearOrders)
	if err != nil {
		logger.Fatal("Failed to seed database", zap.Error(err))
	}
	logger.Info("Database seeded",
		zap.Int("products", len(result.Products)),
		zap.Int("users", len(result.Users)))

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	for _, u := range result.Users {
		token, err := issuer.Issue(u.ID, auth.RoleCustomer)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Printf("%s <%s>\n  %s\n", u.Name, u.Email, token)
	}

	token, err := issuer.Issue(*adminID, auth.RoleAdmin)
	if err != nil {
		logger.Fatal("Failed to issue token", zap.Error(err))
	}
	fmt.Printf("admin (%s)\n  %s\n", *adminID, token)
}
