package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"procurement/internal/model"
	"procurement/internal/testutil"
	"procurement/internal/workflow"
)

func TestRunInTxRetryRerunsOnVersionConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tm := NewTransactionManager(db)
	ctx := context.Background()

	attempts := 0
	err := tm.RunInTxRetry(ctx, 3, func(txCtx context.Context) error {
		attempts++
		if err := GetDB(txCtx, db).Create(&model.Supplier{BusinessName: fmt.Sprintf("attempt %d", attempts)}).Error; err != nil {
			return err
		}
		if attempts < 3 {
			return fmt.Errorf("%w: simulated", workflow.ErrConcurrentModification)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("third attempt should succeed, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	var suppliers []model.Supplier
	if err := db.Find(&suppliers).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(suppliers) != 1 || suppliers[0].BusinessName != "attempt 3" {
		t.Fatalf("failed attempts must roll back, got %+v", suppliers)
	}
}

func TestRunInTxRetryStopsOnOtherErrorsAndExhaustion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tm := NewTransactionManager(db)
	ctx := context.Background()

	attempts := 0
	err := tm.RunInTxRetry(ctx, 3, func(context.Context) error {
		attempts++
		return workflow.ErrMissingReason
	})
	if !errors.Is(err, workflow.ErrMissingReason) || attempts != 1 {
		t.Fatalf("non-conflict errors are returned at once, got %v after %d attempts", err, attempts)
	}

	attempts = 0
	err = tm.RunInTxRetry(ctx, 2, func(context.Context) error {
		attempts++
		return workflow.ErrConcurrentModification
	})
	if !errors.Is(err, workflow.ErrConcurrentModification) || attempts != 2 {
		t.Fatalf("conflicts give up after the attempt budget, got %v after %d attempts", err, attempts)
	}
}
