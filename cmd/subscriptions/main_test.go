package main

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/subscriptions/pkg/audit"
	"github.com/platinummonkey/subscriptions/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "seed-currencies", "issue-token"} {
		assert.Contains(t, commands, name)
	}
}

func TestCurrencyDefinitions_Default(t *testing.T) {
	defs, err := currencyDefinitions(config.CurrencyConfig{})
	require.NoError(t, err)
	_, ok := defs.Lookup("en_US")
	assert.True(t, ok)

	_, err = currencyDefinitions(config.CurrencyConfig{DefinitionsFile: t.TempDir() + "/missing.yaml"})
	assert.Error(t, err)
}

func TestAdminAuditLog(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l, err := adminAuditLog(config.AdminConfig{}, db)
	require.NoError(t, err)
	assert.IsType(t, &audit.DBLogger{}, l)

	l, err = adminAuditLog(config.AdminConfig{AuditLogDir: t.TempDir()}, db)
	require.NoError(t, err)
	defer l.Close()
	_, ok := l.(audit.Reader)
	assert.True(t, ok, "history is still served from the database")
}
