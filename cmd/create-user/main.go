package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"fileoff/backend/internal/auth"
	"fileoff/backend/internal/config"
	"fileoff/backend/internal/domain"
	"fileoff/backend/internal/storage"
	"fileoff/backend/internal/storage/hybrid"
)

// 运维工具：直接在数据库里开一个账号，不经过 HTTP 注册。
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-user <login> <password>")
		os.Exit(1)
	}

	login := os.Args[1]
	password := os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("Database is not configured; this tool only works against a persistent store")
		os.Exit(1)
	}

	store, err := hybrid.NewStore(&cfg.Database, &cfg.Redis)
	if err != nil {
		fmt.Printf("Failed to connect to storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if !auth.ValidateLogin(login) {
		fmt.Println("Invalid login format")
		os.Exit(1)
	}

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Login:        login,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now(),
	}

	if err := store.CreateUser(user); err != nil {
		if err == storage.ErrLoginExists {
			fmt.Printf("Login '%s' is already taken\n", login)
		} else {
			fmt.Printf("Failed to create user: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("✓ User created successfully!\n")
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Login: %s\n", user.Login)
}
