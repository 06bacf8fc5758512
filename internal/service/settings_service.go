package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var settingDescriptions = map[string]string{
	model.SettingDirectPurchaseLimit: "Highest estimated amount classified as a direct purchase",
	model.SettingEvaluationThreshold: "Quotations needed before a request moves to evaluation",
}

// SettingView is one setting with its effective value.
type SettingView struct {
	Key         string     `json:"key"`
	Value       string     `json:"value"`
	Description string     `json:"description"`
	Source      string     `json:"source"` // default or override
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type UpdateSettingInput struct {
	Value string `json:"value" binding:"required"`
}

type SettingsService interface {
	PolicyProvider
	List(ctx context.Context) ([]SettingView, error)
	Update(ctx context.Context, key, userID string, in UpdateSettingInput) (SettingView, error)
}

type settingsService struct {
	settings  repository.SettingsRepository
	txManager repository.TransactionManager
	audit     auditWriter
	defaults  workflow.Policy
	log       *zap.Logger
}

// NewSettingsService serves defaults overridden by purchase_settings rows.
func NewSettingsService(
	settings repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	defaults workflow.Policy,
	log *zap.Logger,
) SettingsService {
	return &settingsService{
		settings:  settings,
		txManager: txManager,
		audit:     auditWriter{repo: auditRepo},
		defaults:  defaults,
		log:       log,
	}
}

func (s *settingsService) defaultValue(key string) string {
	switch key {
	case model.SettingDirectPurchaseLimit:
		return s.defaults.DirectPurchaseLimit.String()
	case model.SettingEvaluationThreshold:
		return strconv.Itoa(s.defaults.EvaluationThreshold)
	}
	return ""
}

// parseSetting validates a raw value for key.
func parseSetting(key, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch key {
	case model.SettingDirectPurchaseLimit:
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return nil, workflow.Validationf("%s must be a non-negative amount", key)
		}
		return d, nil
	case model.SettingEvaluationThreshold:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, workflow.Validationf("%s must be a whole number of at least 1", key)
		}
		return n, nil
	}
	return nil, workflow.NotFoundf("setting %q", key)
}

func (s *settingsService) Policy(ctx context.Context) (workflow.Policy, error) {
	policy := s.defaults
	rows, err := s.settings.List(ctx)
	if err != nil {
		return policy, fmt.Errorf("failed to load purchase settings: %w", err)
	}
	for _, row := range rows {
		v, err := parseSetting(row.Key, row.Value)
		if err != nil {
			s.log.Warn("ignoring invalid purchase setting", zap.String("key", row.Key), zap.String("value", row.Value))
			continue
		}
		switch row.Key {
		case model.SettingDirectPurchaseLimit:
			policy.DirectPurchaseLimit = v.(decimal.Decimal)
		case model.SettingEvaluationThreshold:
			policy.EvaluationThreshold = v.(int)
		}
	}
	return policy, nil
}

func (s *settingsService) List(ctx context.Context) ([]SettingView, error) {
	rows, err := s.settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase settings: %w", err)
	}
	stored := make(map[string]model.PurchaseSetting, len(rows))
	for _, row := range rows {
		stored[row.Key] = row
	}

	views := make([]SettingView, 0, len(settingDescriptions))
	for _, key := range []string{model.SettingDirectPurchaseLimit, model.SettingEvaluationThreshold} {
		view := SettingView{Key: key, Value: s.defaultValue(key), Description: settingDescriptions[key], Source: "default"}
		if row, ok := stored[key]; ok {
			updatedAt := row.UpdatedAt
			view.Value = row.Value
			view.Source = "override"
			view.UpdatedAt = &updatedAt
			if row.Description != "" {
				view.Description = row.Description
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *settingsService) Update(ctx context.Context, key, userID string, in UpdateSettingInput) (SettingView, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return SettingView{}, err
	}
	if _, err := parseSetting(key, in.Value); err != nil {
		return SettingView{}, err
	}

	row := model.PurchaseSetting{
		Key:         key,
		Value:       strings.TrimSpace(in.Value),
		Description: settingDescriptions[key],
		UpdatedBy:   &actor,
		UpdatedAt:   time.Now(),
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		previous, err := s.settings.Get(txCtx, key)
		if err != nil {
			return err
		}
		old := s.defaultValue(key)
		if previous != nil {
			old = previous.Value
		}
		if err := s.settings.Upsert(txCtx, &row); err != nil {
			return fmt.Errorf("failed to save setting: %w", err)
		}
		return s.audit.write(txCtx, &actor, model.ActionUpdateSetting, key, key,
			map[string]interface{}{"old": old, "new": row.Value})
	})
	if err != nil {
		return SettingView{}, err
	}

	s.log.Info("purchase setting updated", zap.String("key", key), zap.String("value", row.Value), actorField(actor))
	return SettingView{Key: key, Value: row.Value, Description: row.Description, Source: "override", UpdatedAt: &row.UpdatedAt}, nil
}
