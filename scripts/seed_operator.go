package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/khoahotran/tagvault/adapters/persistence"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/user"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

func main() {
	fmt.Println("adding operator into database...")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	appLogger := logger.NewZapLogger(cfg.App.Env)

	email := os.Getenv("OPERATOR_EMAIL")
	password := os.Getenv("OPERATOR_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("OPERATOR_EMAIL and OPERATOR_PASSWORD are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("cannot hash password: %v", err)
	}

	ctx := context.Background()
	pool, err := persistence.NewPostgresPool(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("cannot connect DB: %v", err)
	}
	defer pool.Close()

	op := &user.User{ID: uuid.New(), Email: email, PasswordHash: hash}
	if name := os.Getenv("OPERATOR_NAME"); name != "" {
		op.Name = &name
	}
	if err := persistence.NewPostgresUserRepo(pool, appLogger).Upsert(ctx, op); err != nil {
		log.Fatalf("cannot add operator: %v", err)
	}

	fmt.Printf("added or updated operator '%s' successfully!\n", email)
}
