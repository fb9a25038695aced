package db

import (
	"context"
	"fmt"
	"time"

	"ms-raffle/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOpenOrder returns the user's PENDING or PROCESSING order in a
// competition, or nil when there is none.
func (d *DB) GetOpenOrder(ctx context.Context, competitionID, userID string) (*models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("competition_id = ?", competitionID).
		Where("user_id = ?", userID).
		Where("status IN (?)", bun.In([]models.PaymentStatus{models.PaymentPending, models.PaymentProcessing})).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// GetOrdersByUser → all orders of a user, newest first
func (d *DB) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return orders, err
}

// GetOrdersNeedingReconciliation lists paid orders whose tickets could not be issued.
func (d *DB) GetOrdersNeedingReconciliation(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("needs_reconciliation = ?", true).
		Where("status = ?", models.PaymentSucceeded).
		Order("created_at ASC").
		Scan(ctx)
	return orders, err
}

// TransitionOrder writes the order's new status, payment reference and
// reconciliation flag, provided the stored status is still from.
func (d *DB) TransitionOrder(ctx context.Context, order *models.Order, from models.PaymentStatus) error {
	order.UpdatedAt = time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("status", "payment_ref", "needs_reconciliation", "updated_at").
		Where("order_id = ?", order.OrderID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order %s: %w", order.OrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return models.NewBusinessRuleError(models.ReasonOrderStateConflict,
			fmt.Sprintf("order %s is no longer %s", order.OrderID, from))
	}
	return nil
}
