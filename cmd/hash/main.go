// Package main prints the bcrypt hash of a password. Profiles store only bcrypt
// hashes, so this tool is used when seeding development accounts directly into the
// profiles table without going through sign-up.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("usage: %s <password> (or pass it on stdin)", os.Args[0])
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash: %v", err)
	}
	fmt.Println(string(hash))
}
