// Package storage persists transactions, overrides, budget config and
// summary snapshots in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/classify"
	"finsight/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// timeLayout is RFC 3339 UTC with a fixed nine-digit fraction.
// Timestamps are compared as strings in SQL, so every stored value
// must have the same width for lexicographic order to match
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UpsertTransactions writes a batch of normalised transactions in one
// either-all-or-nothing transaction. Classification columns are never
// overwritten for rows that already exist, so a re-sync cannot undo a
// manual or model category.
func (r *SQLiteRepository) UpsertTransactions(ctx context.Context, transactions []core.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, user_id, amount, currency, description,
			merchant_name, merchant_key, created_at, month_key,
			user_category_type, user_category_label,
			ai_category_type, ai_category_label,
			default_category_type, default_category_label,
			provider_category, linked_goal_id, is_subscription
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			description = excluded.description,
			merchant_name = excluded.merchant_name,
			merchant_key = excluded.merchant_key,
			created_at = excluded.created_at,
			month_key = excluded.month_key,
			default_category_type = excluded.default_category_type,
			default_category_label = excluded.default_category_label,
			provider_category = excluded.provider_category,
			linked_goal_id = excluded.linked_goal_id,
			is_subscription = excluded.is_subscription`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range transactions {
		_, err := stmt.ExecContext(ctx,
			tx.ID, tx.UserID, tx.Amount, tx.Currency, tx.Description,
			tx.MerchantName, tx.MerchantKey, formatTime(tx.CreatedAt), tx.MonthKey,
			string(tx.UserCategoryType), tx.UserCategoryLabel,
			string(tx.AICategoryType), tx.AICategoryLabel,
			string(tx.DefaultCategoryType), tx.DefaultCategoryLabel,
			tx.ProviderCategory, tx.LinkedGoalID, boolToInt(tx.IsSubscription))
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", tx.ID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

const transactionColumns = `
	id, user_id, amount, currency, description,
	merchant_name, merchant_key, created_at, month_key,
	user_category_type, user_category_label,
	ai_category_type, ai_category_label,
	default_category_type, default_category_label,
	provider_category, linked_goal_id, is_subscription`

// TransactionsSince implements analytics.Store.
func (r *SQLiteRepository) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at`,
		userID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// PendingClassification implements classify.Store: spend transactions
// with neither a manual nor a model category.
func (r *SQLiteRepository) PendingClassification(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ?
		  AND amount < 0
		  AND user_category_type = ''
		  AND ai_category_type = ''
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending classification: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ApplyClassification implements classify.Store. The WHERE clause
// re-checks the unclassified precondition so a duplicate event delivery
// is a harmless no-op; the bool reports whether the write landed.
func (r *SQLiteRepository) ApplyClassification(ctx context.Context, txID string, result classify.Result) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET ai_category_type = ?, ai_category_label = ?, ai_confidence = ?
		WHERE id = ?
		  AND user_category_type = ''
		  AND ai_category_type = ''`,
		string(result.CategoryType), result.Label, result.Confidence, txID)
	if err != nil {
		return false, fmt.Errorf("apply classification to %s: %w", txID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("classification rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetTransaction fetches one transaction by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, txID string) (core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ?`, txID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(transactions) == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	return transactions[0], nil
}

// IncomeOverrides implements analytics.Store.
func (r *SQLiteRepository) IncomeOverrides(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT merchant_key, is_income
		FROM merchant_overrides
		WHERE user_id = ? AND is_income IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("query income overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]bool)
	for rows.Next() {
		var key string
		var isIncome int
		if err := rows.Scan(&key, &isIncome); err != nil {
			return nil, fmt.Errorf("scan income override: %w", err)
		}
		overrides[key] = isIncome != 0
	}
	return overrides, rows.Err()
}

// SubscriptionOverrides implements analytics.Store.
func (r *SQLiteRepository) SubscriptionOverrides(ctx context.Context, userID string) (map[string]core.SubscriptionOverride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT merchant_key, decision, note
		FROM merchant_overrides
		WHERE user_id = ? AND decision IS NOT NULL AND decision != ''`, userID)
	if err != nil {
		return nil, fmt.Errorf("query subscription overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]core.SubscriptionOverride)
	for rows.Next() {
		var key, decision, note string
		if err := rows.Scan(&key, &decision, &note); err != nil {
			return nil, fmt.Errorf("scan subscription override: %w", err)
		}
		overrides[key] = core.SubscriptionOverride{
			Decision: core.Decision(decision),
			Note:     note,
		}
	}
	return overrides, rows.Err()
}

// SetIncomeOverride records a manual income flag for a merchant.
func (r *SQLiteRepository) SetIncomeOverride(ctx context.Context, userID, merchantKey string, isIncome bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merchant_overrides (user_id, merchant_key, is_income, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, merchant_key) DO UPDATE SET
			is_income = excluded.is_income,
			updated_at = excluded.updated_at`,
		userID, merchantKey, boolToInt(isIncome), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set income override: %w", err)
	}
	return nil
}

// SetSubscriptionOverride records a manual keep/reduce/cancel decision.
func (r *SQLiteRepository) SetSubscriptionOverride(ctx context.Context, userID, merchantKey string, override core.SubscriptionOverride) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merchant_overrides (user_id, merchant_key, decision, note, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, merchant_key) DO UPDATE SET
			decision = excluded.decision,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		userID, merchantKey, string(override.Decision), override.Note,
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set subscription override: %w", err)
	}
	return nil
}

// BudgetConfig implements analytics.Store: the user's budget entries
// plus their configured currency.
func (r *SQLiteRepository) BudgetConfig(ctx context.Context, userID string) ([]core.BudgetEntry, string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_key, label, mode, amount, percent
		FROM budget_entries
		WHERE user_id = ?
		ORDER BY category_key`, userID)
	if err != nil {
		return nil, "", fmt.Errorf("query budget entries: %w", err)
	}
	defer rows.Close()

	var entries []core.BudgetEntry
	for rows.Next() {
		var entry core.BudgetEntry
		var mode string
		if err := rows.Scan(&entry.CategoryKey, &entry.Label, &mode, &entry.Amount, &entry.Percent); err != nil {
			return nil, "", fmt.Errorf("scan budget entry: %w", err)
		}
		entry.Mode = core.BudgetMode(mode)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	currency := "GBP"
	err = r.db.QueryRowContext(ctx,
		`SELECT currency FROM budget_settings WHERE user_id = ?`, userID).Scan(&currency)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("query budget currency: %w", err)
	}

	return entries, currency, nil
}

// SetBudgetEntry stores one category budget target.
func (r *SQLiteRepository) SetBudgetEntry(ctx context.Context, userID string, entry core.BudgetEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_entries (user_id, category_key, label, mode, amount, percent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category_key) DO UPDATE SET
			label = excluded.label,
			mode = excluded.mode,
			amount = excluded.amount,
			percent = excluded.percent`,
		userID, entry.CategoryKey, entry.Label, string(entry.Mode), entry.Amount, entry.Percent)
	if err != nil {
		return fmt.Errorf("set budget entry: %w", err)
	}
	return nil
}

// Goals implements analytics.Store.
func (r *SQLiteRepository) Goals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, theme, estimated_cost, linked_pot_id, status
		FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		var goal core.Goal
		if err := rows.Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.Theme,
			&goal.EstimatedCost, &goal.LinkedPotID, &goal.Status); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// UpsertGoal stores one savings goal.
func (r *SQLiteRepository) UpsertGoal(ctx context.Context, goal core.Goal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, theme, estimated_cost, linked_pot_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			theme = excluded.theme,
			estimated_cost = excluded.estimated_cost,
			linked_pot_id = excluded.linked_pot_id,
			status = excluded.status`,
		goal.ID, goal.UserID, goal.Title, goal.Theme, goal.EstimatedCost, goal.LinkedPotID, goal.Status)
	if err != nil {
		return fmt.Errorf("upsert goal %s: %w", goal.ID, err)
	}
	return nil
}

// Pots implements analytics.Store.
func (r *SQLiteRepository) Pots(ctx context.Context, userID string) ([]core.Pot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, balance_minor, currency
		FROM pots WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query pots: %w", err)
	}
	defer rows.Close()

	var pots []core.Pot
	for rows.Next() {
		var pot core.Pot
		if err := rows.Scan(&pot.ID, &pot.UserID, &pot.Name, &pot.BalanceMinor, &pot.Currency); err != nil {
			return nil, fmt.Errorf("scan pot: %w", err)
		}
		pots = append(pots, pot)
	}
	return pots, rows.Err()
}

// UpsertPot stores one pot balance as delivered by the banking sync.
func (r *SQLiteRepository) UpsertPot(ctx context.Context, pot core.Pot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pots (id, user_id, name, balance_minor, currency)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance_minor = excluded.balance_minor,
			currency = excluded.currency`,
		pot.ID, pot.UserID, pot.Name, pot.BalanceMinor, pot.Currency)
	if err != nil {
		return fmt.Errorf("upsert pot %s: %w", pot.ID, err)
	}
	return nil
}

// SaveSummary implements analytics.Store. The snapshot is written as a
// full replace keyed by user id, so the last writer always leaves a
// complete document behind.
func (r *SQLiteRepository) SaveSummary(ctx context.Context, userID string, snapshot *analytics.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO summaries (user_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		userID, string(payload), formatTime(snapshot.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save summary for %s: %w", userID, err)
	}
	return nil
}

// GetSummary reads back the latest snapshot for a user.
func (r *SQLiteRepository) GetSummary(ctx context.Context, userID string) (*analytics.Snapshot, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM summaries WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}

	var snapshot analytics.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &snapshot, nil
}

// UserIDs lists every user with at least one transaction, for the
// scheduled full-recomputation sweep.
func (r *SQLiteRepository) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var transactions []core.Transaction
	for rows.Next() {
		var tx core.Transaction
		var createdAt string
		var userType, aiType, defaultType string
		var isSubscription int
		if err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Description,
			&tx.MerchantName, &tx.MerchantKey, &createdAt, &tx.MonthKey,
			&userType, &tx.UserCategoryLabel,
			&aiType, &tx.AICategoryLabel,
			&defaultType, &tx.DefaultCategoryLabel,
			&tx.ProviderCategory, &tx.LinkedGoalID, &isSubscription,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		tx.CreatedAt = ts.UTC()
		tx.UserCategoryType = core.CategoryType(userType)
		tx.AICategoryType = core.CategoryType(aiType)
		tx.DefaultCategoryType = core.CategoryType(defaultType)
		tx.IsSubscription = isSubscription != 0
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
