package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere(domain.ByEmail("a@b.c"), 1)
	require.NoError(t, err)
	assert.Equal(t, "email = $1", where)
	assert.Equal(t, []any{"a@b.c"}, args)

	where, args, err = buildWhere(domain.RecordFilter{Email: "a@b.c", CustomerID: "cus_1"}, 4)
	require.NoError(t, err)
	assert.Equal(t, "email = $4 AND customer_id = $5", where)
	assert.Equal(t, []any{"a@b.c", "cus_1"}, args)

	_, _, err = buildWhere(domain.RecordFilter{}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestBuildSet_PlanGroupWrittenTogether(t *testing.T) {
	set, args := buildSet(domain.RecordUpdate{
		Name: strPtr("Ann"),
		Plan: domain.SetPlan(domain.PlanState{
			SubscriptionID: "sub_1", PriceID: "price_1", ProductID: "prod_1", PlanName: "Pro", PlanPrice: 1000,
		}),
	})
	assert.Equal(t,
		"name = $1, subscription_id = $2, price_id = $3, product_id = $4, plan_name = $5, plan_price = $6, updated_at = NOW()",
		set)
	assert.Equal(t, []any{"Ann", "sub_1", "price_1", "prod_1", "Pro", int64(1000)}, args)
}

func TestBuildSet_PlanClear(t *testing.T) {
	set, args := buildSet(domain.RecordUpdate{Plan: domain.ClearPlan()})
	assert.Equal(t,
		"subscription_id = NULL, price_id = NULL, product_id = NULL, plan_name = NULL, plan_price = NULL, updated_at = NOW()",
		set)
	assert.Empty(t, args)
}

func TestAsDuplicate(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "subscriptions_email_key"})
	dup := asDuplicate(err, "a@b.c", "cus_1")
	require.Error(t, dup)
	assert.True(t, errors.Is(dup, domain.ErrDuplicate))
	assert.Contains(t, dup.Error(), "email")

	dup = asDuplicate(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "subscriptions_customer_id_key"}, "a@b.c", "cus_1")
	require.Error(t, dup)
	assert.Contains(t, dup.Error(), "cus_1")

	assert.Nil(t, asDuplicate(&pgconn.PgError{Code: "23514"}, "", ""))
	assert.Nil(t, asDuplicate(errors.New("boom"), "", ""))
}

func TestRowRoundTripKeepsPlanGroup(t *testing.T) {
	rec := &domain.Record{Email: "a@b.c", Name: "Ann", CustomerID: "cus_1"}
	assert.Nil(t, toRow(rec).toDomain().Plan)

	rec.Plan = &domain.PlanState{SubscriptionID: "sub_1", PriceID: "p", ProductID: "prod", PlanName: "Pro", PlanPrice: 500}
	got := toRow(rec).toDomain()
	require.NotNil(t, got.Plan)
	assert.Equal(t, *rec.Plan, *got.Plan)
	assert.False(t, toRow(&domain.Record{Email: "x"}).CustomerID.Valid)
}

// Интеграционный тест, запускается при заданном BILLING_TEST_DATABASE_DSN
func TestRecordStore_Postgres(t *testing.T) {
	dsn := os.Getenv("BILLING_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("BILLING_TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := logger.NewNop()
	pool, err := NewConnection(ctx, PoolConfig{DSN: dsn}, log)
	require.NoError(t, err)
	defer pool.Close()

	db := OpenDB(pool)
	defer db.Close()
	require.NoError(t, EnsureSchema(ctx, db))

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	email := "pg-" + suffix + "@example.com"
	customerID := "cus_" + suffix

	store := NewRecordStore(db, log)
	require.NoError(t, store.Create(ctx, &domain.Record{Email: email, Name: "Ann", CustomerID: customerID}))
	assert.ErrorIs(t, store.Create(ctx, &domain.Record{Email: email}), domain.ErrDuplicate)

	ok, err := store.UpdateOne(ctx, domain.ByCustomerID(customerID), domain.RecordUpdate{
		Plan: domain.SetPlan(domain.PlanState{SubscriptionID: "sub_1", PriceID: "price_1", ProductID: "prod_1", PlanName: "Pro", PlanPrice: 1000}),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := store.FindOne(ctx, domain.ByEmail(email))
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Plan)
	assert.Equal(t, "Pro", rec.Plan.PlanName)

	ok, err = store.UpdateOne(ctx, domain.ByCustomerID(customerID), domain.RecordUpdate{Plan: domain.ClearPlan()})
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = store.FindOne(ctx, domain.ByEmail(email))
	require.NoError(t, err)
	assert.Nil(t, rec.Plan)

	ok, err = store.DeleteOne(ctx, domain.ByCustomerID(customerID))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DeleteOne(ctx, domain.ByCustomerID(customerID))
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err = store.FindOne(ctx, domain.ByEmail(email))
	require.NoError(t, err)
	assert.Nil(t, rec)
}
