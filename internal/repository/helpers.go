package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document number prefixes, followed by the year and a 4-digit sequence.
const (
	PrefixRequest = "SC"
	PrefixOrder   = "OC"
	PrefixRFQ     = "RFQ"
)

// notFound converts gorm.ErrRecordNotFound into workflow.ErrNotFound.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFoundf("%s %v", entity, id)
	}
	return err
}

// nextNumber returns the next PREFIX-YYYY-NNNN value for column in table.
// Call inside the transaction that inserts the row; on Postgres the prefix is
// serialized with an advisory lock for the rest of the transaction.
func nextNumber(db *gorm.DB, table, column, prefix string, now time.Time) (string, error) {
	yearPrefix := fmt.Sprintf("%s-%d-", prefix, now.Year())

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", yearPrefix).Error; err != nil {
			return "", fmt.Errorf("failed to lock %s sequence: %w", prefix, err)
		}
	}

	var last []string
	if err := db.Table(table).
		Where(column+" LIKE ?", yearPrefix+"%").
		Order("LENGTH("+column+") DESC, "+column+" DESC").
		Limit(1).
		Pluck(column, &last).Error; err != nil {
		return "", fmt.Errorf("failed to read last %s number: %w", prefix, err)
	}

	seq := 1
	if len(last) > 0 {
		if n, err := strconv.Atoi(strings.TrimPrefix(last[0], yearPrefix)); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", yearPrefix, seq), nil
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

// nextSeq returns the next history position under parentID. Appends share a
// transaction with a versioned write of the parent, which orders concurrent writers.
func nextSeq(db *gorm.DB, table, parentColumn string, parentID uuid.UUID) (int, error) {
	var last int
	err := db.Table(table).Where(parentColumn+" = ?", parentID).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error
	return last + 1, err
}
