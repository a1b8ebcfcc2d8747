// Package main provides a simple tool to generate JWT tokens for the DropMyBeat API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/models"
)

func main() {
	userID := flag.String("user", "", "Person ID, or participant ID with -event")
	email := flag.String("email", "admin@localhost", "Email for the token")
	role := flag.String("role", string(models.RoleAdmin), "Role for the token (admin, manager, member)")
	eventID := flag.String("event", "", "Issue a guest token bound to this event")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 24*time.Hour, "Token expiry duration")
	flag.Parse()

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/gentoken -user <id> -secret 'your-secret-at-least-32-chars-long'")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(1)
	}

	svc := auth.NewService(&auth.Config{
		JWTSecret:        []byte(jwtSecret),
		TokenExpiry:      *expiry,
		GuestTokenExpiry: *expiry,
	}, nil)

	var (
		token string
		err   error
	)
	if *eventID != "" {
		token, err = svc.GenerateGuestToken(*userID, *email, *eventID)
	} else {
		token, err = svc.GenerateToken(*userID, *email, models.Role(*role))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
