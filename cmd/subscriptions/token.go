package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/middleware"
)

func runIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "Optional .env file to load before the environment")
	userID := fs.Int64("user-id", 0, "User id the token is issued for (required)")
	username := fs.String("username", "", "Username recorded in the token")
	staff := fs.Bool("staff", false, "Grant access to the admin site")
	superuser := fs.Bool("superuser", false, "Grant every permission")
	permissions := fs.String("permissions", "", "Comma separated permissions, e.g. subscriptions")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("--user-id is required")
	}

	cfg, _, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("SUBSCRIPTIONS_JWT_SECRET is not set")
	}

	var perms []string
	for _, p := range strings.Split(*permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}

	auth := middleware.NewStaffAuth([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer)
	token, err := auth.IssueToken(middleware.Staff{
		UserID:      *userID,
		Username:    *username,
		IsStaff:     *staff,
		IsSuperuser: *superuser,
		Permissions: perms,
	}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
