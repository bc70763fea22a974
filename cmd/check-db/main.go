// Package main is a diagnostic tool for testing database connectivity and
// inspecting live hub data. It connects with the server configuration, prints the
// schema version, each tenant with its license and member counts, and the platform
// super admins. The binary exits with a non-zero code on any failure so it can gate
// deployment steps on a reachable, migrated database.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/community-hub/backend/internal/config"
	"github.com/community-hub/backend/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	fmt.Println("\n=== TENANTS ===")
	rows, err := database.Query(`
		SELECT o.slug, o.status,
		       COALESCE(l.status, 'none'),
		       (SELECT COUNT(*) FROM organization_memberships m WHERE m.organization_id = o.id AND m.status = 'active'),
		       (SELECT COUNT(*) FROM organization_memberships m WHERE m.organization_id = o.id AND m.status = 'pending')
		FROM organizations o
		LEFT JOIN LATERAL (
			SELECT status FROM organization_licenses ol
			WHERE ol.organization_id = o.id
			ORDER BY ol.created_at DESC LIMIT 1
		) l ON true
		ORDER BY o.slug`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var slug, status, license string
		var active, pending int
		if err := rows.Scan(&slug, &status, &license, &active, &pending); err != nil {
			log.Printf("Warning: failed to scan tenant row: %v", err)
			continue
		}
		fmt.Printf("Tenant: %s (status: %s, license: %s) - members: %d active, %d pending\n", slug, status, license, active, pending)
		count++
	}
	if count == 0 {
		fmt.Println("No tenants found!")
	}

	fmt.Println("\n=== SUPER ADMINS ===")
	admins, err := database.Query("SELECT email FROM profiles WHERE platform_role = 'super_admin' ORDER BY email")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer admins.Close()

	count = 0
	for admins.Next() {
		var email string
		if err := admins.Scan(&email); err != nil {
			log.Printf("Warning: failed to scan profile row: %v", err)
			continue
		}
		fmt.Printf("Super admin: %s\n", email)
		count++
	}
	if count == 0 {
		fmt.Println("No super admin yet; complete first-run setup with the setup token.")
	}
}
