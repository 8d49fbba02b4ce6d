// Package main provides a CLI tool for generating test tokens for the
// dealerdesk API. These tokens use the dev signing key and will NOT work in
// production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"dealerdesk/internal/jwttoken"
	"dealerdesk/pkg/domain"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "http://localhost:8080"
	defaultAudience = "dealerdesk-client"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]string `json:"claims"`
	Usage     string            `json:"usage"`
}

func main() {
	userIDFlag := flag.String("user-id", "", "Dealer user ID (UUID). Generated if empty.")
	tenantIDFlag := flag.String("tenant-id", "", "Tenant ID (UUID). Empty produces a shared-only platform admin token.")
	role := flag.String("role", "dealer_admin", "Role claim")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	userID := domain.DealerUserID(uuid.New())
	if *userIDFlag != "" {
		parsed, err := domain.ParseDealerUserID(*userIDFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid user-id:", err)
			os.Exit(1)
		}
		userID = parsed
	}

	var tenantID domain.TenantID
	if *tenantIDFlag != "" {
		parsed, err := domain.ParseTenantID(*tenantIDFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid tenant-id:", err)
			os.Exit(1)
		}
		tenantID = parsed
	}

	svc := jwttoken.NewService(devSigningKey, defaultIssuer, defaultAudience, *ttl)
	token, err := svc.GenerateToken(userID, tenantID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token generation failed:", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			ExpiresIn: ttl.String(),
			Claims: map[string]string{
				"user_id":   userID.String(),
				"tenant_id": *tenantIDFlag,
				"role":      *role,
			},
			Usage: `curl -H "Authorization: Bearer <token>" http://localhost:8080/api/vehicles`,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println(token)
}
