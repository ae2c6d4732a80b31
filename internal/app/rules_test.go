package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api-gateway/internal/common/logging"
	"api-gateway/internal/config"
	"api-gateway/internal/routing"
	"api-gateway/internal/store"
)

func writeRulesFile(t *testing.T, rules []routing.Rule) string {
	t.Helper()

	data, err := json.Marshal(rules)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestApp(t *testing.T, rulesFile string) *App {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.NewWithDB(db, "sqlite3")
	require.NoError(t, err)

	return &App{
		Config: &config.Config{RulesFile: rulesFile},
		Store:  st,
		Router: routing.New(nil),
		Logger: logging.GetGlobalLogger(),
	}
}

func TestLoadInitialRules_SeedsStoreFromFile(t *testing.T) {
	fileRules := []routing.Rule{
		{ID: "users", PathPrefix: "/users", TargetService: "user-service", Priority: 10},
		{ID: "featured", ExactPath: "/listings/featured", TargetService: "listing-service", Priority: 20},
	}
	app := newTestApp(t, writeRulesFile(t, fileRules))

	require.NoError(t, app.loadInitialRules(context.Background()))

	stored, err := app.Store.ListRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, ok := app.Router.Route(routing.Request{Path: "/users/1", Method: "GET"})
	assert.True(t, ok, "seeded rules must be live in the router")
}

func TestLoadInitialRules_StoreTakesPrecedence(t *testing.T) {
	fileRules := []routing.Rule{
		{ID: "from-file", PathPrefix: "/file", TargetService: "file-service"},
	}
	app := newTestApp(t, writeRulesFile(t, fileRules))

	storedRule := routing.Rule{ID: "from-store", PathPrefix: "/store", TargetService: "store-service"}
	require.NoError(t, app.Store.CreateRule(context.Background(), storedRule))

	require.NoError(t, app.loadInitialRules(context.Background()))

	// The file is only a seed; a populated store wins.
	_, ok := app.Router.Route(routing.Request{Path: "/store/x", Method: "GET"})
	assert.True(t, ok)
	_, ok = app.Router.Route(routing.Request{Path: "/file/x", Method: "GET"})
	assert.False(t, ok)
}

func TestLoadInitialRules_NoFileNoRules(t *testing.T) {
	app := newTestApp(t, "")

	require.NoError(t, app.loadInitialRules(context.Background()))

	_, ok := app.Router.Route(routing.Request{Path: "/anything", Method: "GET"})
	assert.False(t, ok)
}

func TestLoadInitialRules_MissingFile(t *testing.T) {
	app := newTestApp(t, "/nonexistent/rules.json")

	err := app.loadInitialRules(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read rules file")
}

func TestReadRulesFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := readRulesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse rules file")
}

func TestStartRuleReload_InvalidSchedule(t *testing.T) {
	app := newTestApp(t, writeRulesFile(t, nil))
	app.Config.RulesReloadSchedule = "not a cron spec"

	err := app.startRuleReload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RULES_RELOAD_SCHEDULE")
}

func TestStartRuleReload_DisabledWithoutSchedule(t *testing.T) {
	app := newTestApp(t, "")

	require.NoError(t, app.startRuleReload())
	assert.Nil(t, app.reloadCron)
}
