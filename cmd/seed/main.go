// Command seed initializes the pay-secure schema and creates the demo user.
// It is meant to be run once against a dev or test database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mgurusai/pay-secure/internal/security"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id        UUID NOT NULL REFERENCES users(id),
	encrypted_card TEXT NOT NULL,
	amount         NUMERIC(12, 2) NOT NULL,
	region         TEXT NOT NULL,
	risk_score     DOUBLE PRECISION NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('success', 'failed_3ds')),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
`

const (
	demoUsername = "demo_user"
	demoPassword = "secure_pass"
)

func main() {
	env := getEnv("PAYSECURE_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: PAYSECURE_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "paysecure")
	user := getEnv("POSTGRES_USER", "paysecure")
	password := getEnv("POSTGRES_PASSWORD", "paysecure")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Creating schema...")
	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}

	if err := seedDemoUser(ctx, pool); err != nil {
		log.Fatalf("seed demo user: %v", err)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Credentials:")
	fmt.Printf("  Username: %s\n", demoUsername)
	fmt.Printf("  Password: %s\n", demoPassword)
}

func seedDemoUser(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, demoUsername).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check demo user: %w", err)
	}
	if exists {
		fmt.Println("Database already initialized (demo user exists).")
		return nil
	}

	hash, err := security.HashPassword(demoPassword, security.DefaultArgon2Params())
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	if _, err := pool.Exec(ctx, `INSERT INTO users (username, password_hash) VALUES ($1, $2)`, demoUsername, hash); err != nil {
		return fmt.Errorf("insert demo user: %w", err)
	}

	fmt.Println("Demo user created.")
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
