package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	uniqueViolationCode = "23505"

	recordColumns = `email, name, customer_id, subscription_id, price_id, product_id, plan_name, plan_price, created_at, updated_at`
)

var _ repository.RecordStore = (*RecordStore)(nil)

// recordRow строка таблицы subscriptions
type recordRow struct {
	Email          string         `db:"email"`
	Name           string         `db:"name"`
	CustomerID     sql.NullString `db:"customer_id"`
	SubscriptionID sql.NullString `db:"subscription_id"`
	PriceID        sql.NullString `db:"price_id"`
	ProductID      sql.NullString `db:"product_id"`
	PlanName       sql.NullString `db:"plan_name"`
	PlanPrice      sql.NullInt64  `db:"plan_price"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r recordRow) toDomain() *domain.Record {
	rec := &domain.Record{
		Email:      r.Email,
		Name:       r.Name,
		CustomerID: r.CustomerID.String,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	// CHECK-ограничение гарантирует, что группа либо целиком NULL, либо целиком заполнена
	if r.SubscriptionID.Valid {
		rec.Plan = &domain.PlanState{
			SubscriptionID: r.SubscriptionID.String,
			PriceID:        r.PriceID.String,
			ProductID:      r.ProductID.String,
			PlanName:       r.PlanName.String,
			PlanPrice:      r.PlanPrice.Int64,
		}
	}
	return rec
}

// RecordStore реализация хранилища записей в PostgreSQL
type RecordStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewRecordStore создает новое хранилище записей
func NewRecordStore(db *sqlx.DB, log *logger.Logger) *RecordStore {
	return &RecordStore{db: db, log: log}
}

// FindOne возвращает первую запись, подходящую под фильтр
func (s *RecordStore) FindOne(ctx context.Context, filter domain.RecordFilter) (*domain.Record, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM subscriptions WHERE ` + where + ` LIMIT 1`

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.log.Errorw("Failed to find record", "error", err, "email", filter.Email, "customerID", filter.CustomerID)
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return row.toDomain(), nil
}

// Create сохраняет новую запись
func (s *RecordStore) Create(ctx context.Context, rec *domain.Record) error {
	if rec == nil || rec.Email == "" {
		return domain.NewValidationError("email", "email is required")
	}

	row := toRow(rec)
	query := `
		INSERT INTO subscriptions (email, name, customer_id, subscription_id, price_id, product_id, plan_name, plan_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		row.Email, row.Name, row.CustomerID,
		row.SubscriptionID, row.PriceID, row.ProductID, row.PlanName, row.PlanPrice,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if dup := asDuplicate(err, rec.Email, rec.CustomerID); dup != nil {
			return dup
		}
		s.log.Errorw("Failed to create record", "error", err, "email", rec.Email)
		return fmt.Errorf("failed to create record: %w", err)
	}

	s.log.Debugw("Record created", "email", rec.Email, "customerID", rec.CustomerID)
	return nil
}

// UpdateOne применяет обновление одним UPDATE
func (s *RecordStore) UpdateOne(ctx context.Context, filter domain.RecordFilter, update domain.RecordUpdate) (bool, error) {
	if filter.IsEmpty() {
		return false, domain.ErrInvalidFilter
	}
	if update.IsEmpty() {
		rec, err := s.FindOne(ctx, filter)
		return rec != nil, err
	}

	set, args := buildSet(update)
	where, whereArgs, err := buildWhere(filter, len(args)+1)
	if err != nil {
		return false, err
	}
	args = append(args, whereArgs...)

	query := `UPDATE subscriptions SET ` + set + ` WHERE ` + where

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		var email string
		if update.Email != nil {
			email = *update.Email
		}
		if dup := asDuplicate(err, email, ""); dup != nil {
			return false, dup
		}
		s.log.Errorw("Failed to update record", "error", err, "email", filter.Email, "customerID", filter.CustomerID)
		return false, fmt.Errorf("failed to update record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteOne удаляет одну запись
func (s *RecordStore) DeleteOne(ctx context.Context, filter domain.RecordFilter) (bool, error) {
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return false, err
	}

	query := `DELETE FROM subscriptions WHERE id = (SELECT id FROM subscriptions WHERE ` + where + ` LIMIT 1)`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.Errorw("Failed to delete record", "error", err, "email", filter.Email, "customerID", filter.CustomerID)
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func toRow(rec *domain.Record) recordRow {
	row := recordRow{
		Email:      rec.Email,
		Name:       rec.Name,
		CustomerID: nullString(rec.CustomerID),
	}
	if rec.Plan != nil {
		row.SubscriptionID = sql.NullString{String: rec.Plan.SubscriptionID, Valid: true}
		row.PriceID = sql.NullString{String: rec.Plan.PriceID, Valid: true}
		row.ProductID = sql.NullString{String: rec.Plan.ProductID, Valid: true}
		row.PlanName = sql.NullString{String: rec.Plan.PlanName, Valid: true}
		row.PlanPrice = sql.NullInt64{Int64: rec.Plan.PlanPrice, Valid: true}
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// buildWhere собирает условие по фильтру, нумерация параметров начинается с first
func buildWhere(filter domain.RecordFilter, first int) (string, []any, error) {
	if filter.IsEmpty() {
		return "", nil, domain.ErrInvalidFilter
	}

	var (
		conds []string
		args  []any
	)
	if filter.Email != "" {
		conds = append(conds, fmt.Sprintf("email = $%d", first+len(args)))
		args = append(args, filter.Email)
	}
	if filter.CustomerID != "" {
		conds = append(conds, fmt.Sprintf("customer_id = $%d", first+len(args)))
		args = append(args, filter.CustomerID)
	}
	return strings.Join(conds, " AND "), args, nil
}

// buildSet собирает SET для обновления. Группа тарифа пишется целиком в том же выражении.
func buildSet(update domain.RecordUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}

	switch update.Plan.Op {
	case domain.PlanSet:
		st := update.Plan.State
		add("subscription_id", st.SubscriptionID)
		add("price_id", st.PriceID)
		add("product_id", st.ProductID)
		add("plan_name", st.PlanName)
		add("plan_price", st.PlanPrice)
	case domain.PlanClear:
		sets = append(sets,
			"subscription_id = NULL",
			"price_id = NULL",
			"product_id = NULL",
			"plan_name = NULL",
			"plan_price = NULL",
		)
	}

	sets = append(sets, "updated_at = NOW()")
	return strings.Join(sets, ", "), args
}

// asDuplicate переводит нарушение уникальности в domain.DuplicateError
func asDuplicate(err error, email, customerID string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "customer_id") {
		return domain.NewDuplicateError("record", "customerId", customerID)
	}
	return domain.NewDuplicateError("record", "email", email)
}
