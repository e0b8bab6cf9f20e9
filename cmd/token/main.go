// Command token issues an identity token for local development.
package main

import (
	"dm-lab/auth"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	userID := flag.String("user", "", "User id carried by the token")
	roles := flag.String("roles", "", "Comma separated roles")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		return errors.New("-user is required")
	}
	tokens, err := auth.NewTokenService(os.Getenv("JWT_SECRET"), *ttl)
	if err != nil {
		return err
	}
	var roleList []string
	if *roles != "" {
		roleList = strings.Split(*roles, ",")
	}
	token, err := tokens.GenerateToken(*userID, roleList)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
