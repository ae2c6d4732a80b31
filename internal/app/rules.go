package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"

	"api-gateway/internal/common/logging"
	"api-gateway/internal/routing"
)

// loadInitialRules publishes the persisted rule set, seeding the store
// from the configured rules file first if the store is empty. When a
// rules file is configured it is the authoritative boot-time source.
func (a *App) loadInitialRules(ctx context.Context) error {
	rules, err := a.Store.ListRules(ctx)
	if err != nil {
		return err
	}

	if len(rules) == 0 && a.Config.RulesFile != "" {
		fileRules, err := readRulesFile(a.Config.RulesFile)
		if err != nil {
			return err
		}
		for _, rule := range fileRules {
			if err := a.Store.CreateRule(ctx, rule); err != nil {
				return err
			}
		}
		rules = fileRules
		a.Logger.Info("seeded rule store from file",
			logging.Field{Key: "file", Value: a.Config.RulesFile},
			logging.Field{Key: "rules", Value: len(fileRules)})
	}

	a.Router.UpdateRules(rules)
	a.Logger.Info("routing rules published", logging.Field{Key: "rules", Value: len(rules)})
	return nil
}

// startRuleReload schedules periodic re-reads of the rules file. Each
// tick republishes the file contents wholesale; UpdateRules makes the
// swap atomic for in-flight requests.
func (a *App) startRuleReload() error {
	if a.Config.RulesReloadSchedule == "" || a.Config.RulesFile == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(a.Config.RulesReloadSchedule, func() {
		rules, err := readRulesFile(a.Config.RulesFile)
		if err != nil {
			a.Logger.Error("failed to reload rules file", err,
				logging.Field{Key: "file", Value: a.Config.RulesFile})
			return
		}
		a.Router.UpdateRules(rules)
		a.Logger.Info("routing rules reloaded from file",
			logging.Field{Key: "rules", Value: len(rules)})
	})
	if err != nil {
		return fmt.Errorf("invalid RULES_RELOAD_SCHEDULE: %w", err)
	}

	c.Start()
	a.reloadCron = c
	return nil
}

// readRulesFile parses a JSON array of rules.
func readRulesFile(path string) ([]routing.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []routing.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return rules, nil
}
