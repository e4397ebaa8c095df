// Package config loads service configuration from SUBSCRIPTIONS_* environment
// variables, optionally seeded from a .env file.
//
// Server:
//
//	SUBSCRIPTIONS_HOST="0.0.0.0"
//	SUBSCRIPTIONS_PORT="8080"
//	SUBSCRIPTIONS_HEALTH_PORT="9090"
//	SUBSCRIPTIONS_ALLOWED_ORIGINS="https://shop.example.com"
//
// Storage:
//
//	SUBSCRIPTIONS_POSTGRES_URL="postgres://localhost/subscriptions"
//	SUBSCRIPTIONS_POSTGRES_REPLICA_URLS="postgres://replica1/subscriptions"
//	SUBSCRIPTIONS_REDIS_URL="redis://localhost:6379"
//	SUBSCRIPTIONS_CACHE_TTL_PLAN_LIST="5m"
//
// Admin site and renewals:
//
//	SUBSCRIPTIONS_ENABLE_ADMIN="true"
//	SUBSCRIPTIONS_JWT_SECRET="..."          # at least 32 bytes
//	SUBSCRIPTIONS_RENEWAL_SCHEDULE="@every 1h"
//	SUBSCRIPTIONS_RENEWAL_WORKERS="4"
//
// Currency definitions:
//
//	SUBSCRIPTIONS_CURRENCY_FILE="/etc/subscriptions/currencies.yaml"
//	SUBSCRIPTIONS_CURRENCY_WATCH="true"
//
// Observability:
//
//	SUBSCRIPTIONS_LOG_LEVEL="info"
//	SUBSCRIPTIONS_OTEL_ENABLED="false"
//	SUBSCRIPTIONS_OTEL_ENDPOINT="localhost:4317"
package config
