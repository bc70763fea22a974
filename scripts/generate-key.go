//go:build ignore

// Package main is a development utility that prints a fresh HUB_JWT_SECRET and a
// ready-to-run SQL statement seeding a local super admin with a random password. It
// skips first-run setup on throwaway databases. Do not use its output in production;
// there the first super admin is promoted with the setup token.
//
//	go run scripts/generate-key.go [email]
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func main() {
	email := "admin@dev.local"
	if len(os.Args) > 1 {
		email = os.Args[1]
	}

	secret := randomString(48)
	password := randomString(12)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Printf("export HUB_JWT_SECRET=%s\n", secret)
	fmt.Println("==========================================================")
	fmt.Printf("\nEmail:    %s\nPassword: %s\n", email, password)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO profiles (email, full_name, password_hash, platform_role)
VALUES ('%s', 'Dev Admin', '%s', 'super_admin')
ON CONFLICT (email) DO UPDATE
SET password_hash = EXCLUDED.password_hash, platform_role = 'super_admin';
`, email, string(hash))
	fmt.Println("==========================================================")
}
