package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

const (
	listCouponsSQL = `SELECT code, discount_type, amount, min_amount, description
		FROM coupons WHERE active = TRUE ORDER BY code`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, amount, min_amount, description, active)
		VALUES (UPPER($1), $2, $3, $4, $5, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			amount = EXCLUDED.amount,
			min_amount = EXCLUDED.min_amount,
			description = EXCLUDED.description,
			active = TRUE`

	listTaxRulesSQL = `SELECT min_amount, max_amount, rate FROM tax_rules ORDER BY position`

	deleteTaxRulesSQL = `DELETE FROM tax_rules`
	insertTaxRuleSQL  = `INSERT INTO tax_rules (position, min_amount, max_amount, rate) VALUES ($1, $2, $3, $4)`

	listShippingMethodsSQL = `SELECT name, cost, min_free FROM shipping_methods ORDER BY position, name`

	upsertShippingMethodSQL = `INSERT INTO shipping_methods (name, position, cost, min_free)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			position = EXCLUDED.position,
			cost = EXCLUDED.cost,
			min_free = EXCLUDED.min_free`
)

var _ checkout.SettingsProvider = (*SettingsRepository)(nil)

// SettingsRepository serves coupons, tax rules and shipping methods.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// ListCoupons returns all active coupons.
func (r *SettingsRepository) ListCoupons(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Coupon, error) {
		var c coupon.Coupon
		err := row.Scan(&c.Code, &c.Type, &c.Amount, &c.MinAmount, &c.Description)
		return c, err
	})
}

// UpsertCoupons stores coupons in one batch. Codes are stored upper-case.
func (r *SettingsRepository) UpsertCoupons(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL, c.Code, c.Type, c.Amount, c.MinAmount, c.Description)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d coupons", len(coupons))
	}
	return nil
}

// ListTaxRules returns the rules in evaluation order.
func (r *SettingsRepository) ListTaxRules(ctx context.Context) ([]pricing.TaxRule, error) {
	rows, err := r.pool.Query(ctx, listTaxRulesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list tax rules")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.TaxRule, error) {
		var t pricing.TaxRule
		err := row.Scan(&t.Min, &t.Max, &t.Rate)
		return t, err
	})
}

// ReplaceTaxRules atomically replaces the rule list, keeping the given order.
func (r *SettingsRepository) ReplaceTaxRules(ctx context.Context, rules []pricing.TaxRule) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteTaxRulesSQL); err != nil {
			return errors.Wrap(err, "clear tax rules")
		}
		for i, t := range rules {
			if _, err := tx.Exec(ctx, insertTaxRuleSQL, i, t.Min, t.Max, t.Rate); err != nil {
				return errors.Wrapf(err, "insert tax rule %d", i)
			}
		}
		return nil
	})
}

// ListShippingMethods returns the configured methods in display order.
func (r *SettingsRepository) ListShippingMethods(ctx context.Context) ([]pricing.ShippingMethod, error) {
	rows, err := r.pool.Query(ctx, listShippingMethodsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list shipping methods")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.ShippingMethod, error) {
		var m pricing.ShippingMethod
		err := row.Scan(&m.Name, &m.Cost, &m.MinFree)
		return m, err
	})
}

// UpsertShippingMethods stores methods with their slice index as display order.
func (r *SettingsRepository) UpsertShippingMethods(ctx context.Context, methods []pricing.ShippingMethod) error {
	batch := &pgx.Batch{}
	for i, m := range methods {
		batch.Queue(upsertShippingMethodSQL, m.Name, i, m.Cost, m.MinFree)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert shipping methods")
	}
	return nil
}
