package main

import (
	"fmt"
	"os"

	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the token table
	cfg.Log.Output = "stderr"
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	users, err := db.SeedTestData(database, log)
	if err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(cfg.TokenSecret(), cfg.Auth.TokenTTL)

	fmt.Printf("%-36s  %-8s  %-6s  %s\n", "ID", "NAME", "ROLE", "TOKEN")
	for _, u := range users {
		tok, err := tokens.Issue(auth.Identity{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email})
		if err != nil {
			log.Error("failed to issue token", "user", u.ID, "err", err)
			os.Exit(1)
		}
		fmt.Printf("%-36s  %-8s  %-6s  %s\n", u.ID, u.Name, u.Role, tok)
	}

	log.Info("seeding completed", "users", len(users), "password", db.SeedPassword)
}
