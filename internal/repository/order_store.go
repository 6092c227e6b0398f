package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

const orderColumns = `id, user_id, address_id, total_price, discount, shipping_cost, spin_reward, message,
	status, order_type, is_three_hour_delivery, payment_method, payment_status, created_at, updated_at`

const (
	EventOrderCreated       = "ORDER_CREATED"
	EventOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

func scanOrder(s interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := s.Scan(
		&o.ID,
		&o.UserID,
		&o.AddressID,
		&o.TotalPrice,
		&o.Discount,
		&o.ShippingCost,
		&o.SpinReward,
		&o.Message,
		&o.Status,
		&o.OrderType,
		&o.IsThreeHourDelivery,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

func (r *Repository) AddressExists(ctx context.Context, addressID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1)`, addressID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query address: %w", err)
	}
	return exists, nil
}

// CreateOrderFromCart converts a cart into an immutable order in a single
// transaction: snapshot the cart, freeze per-item prices, drain the items,
// reset the cart's derived fields, and queue the ORDER_CREATED event. Any
// failure leaves the cart untouched. The cart row is locked for the duration
// so a concurrent checkout of the same cart serializes behind this one and
// then fails on the emptied cart.
func (r *Repository) CreateOrderFromCart(ctx context.Context, cartID int64, p CreateOrderParams) (domain.Order, []domain.OrderItem, error) {
	var (
		order      domain.Order
		orderItems []domain.OrderItem
	)

	err := r.runInTx(ctx, func(tx *sql.Tx) error {
		cart, err := lockCart(ctx, tx, cartID)
		if err != nil {
			return err
		}

		items, err := listPricedItems(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrCartEmpty
		}

		order, err = insertOrder(ctx, tx, cart, p)
		if err != nil {
			return err
		}

		orderItems, err = insertOrderItems(ctx, tx, order.ID, items)
		if err != nil {
			return err
		}

		if err := drainCart(ctx, tx, cartID); err != nil {
			return err
		}

		return insertOutboxEvent(ctx, tx, order.ID.String(), EventOrderCreated, orderCreatedPayload(order, orderItems))
	})
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, orderItems, nil
}

func lockCart(ctx context.Context, tx *sql.Tx, cartID int64) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR UPDATE`

	var c domain.Cart
	err := tx.QueryRowContext(ctx, query, cartID).Scan(
		&c.ID,
		&c.UserID,
		&c.TotalPrice,
		&c.Discount,
		&c.ShippingCost,
		&c.SpinPlayed,
		&c.SpinReward,
		&c.Message,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	return c, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, cart domain.Cart, p CreateOrderParams) (domain.Order, error) {
	query := `INSERT INTO orders (id, user_id, address_id, total_price, discount, shipping_cost,
	              spin_reward, message, status, order_type, is_three_hour_delivery,
	              payment_method, payment_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          RETURNING ` + orderColumns

	return scanOrder(tx.QueryRowContext(ctx, query,
		uuid.New(),
		p.UserID,
		p.AddressID,
		cart.TotalPrice,
		cart.Discount,
		cart.ShippingCost,
		cart.SpinReward,
		cart.Message,
		domain.OrderStatusPending,
		p.OrderType,
		p.OrderType == domain.OrderTypeThreeHour,
		p.PaymentMethod,
		domain.PaymentStatusPending,
	))
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []domain.CartItem) ([]domain.OrderItem, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (order_id, product_id, product_variant_id, quantity, price_per_item) VALUES `)
	args := make([]any, 0, len(items)*5)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, orderID, it.ProductID, it.ProductVariantID, it.Quantity, it.UnitPrice)
	}
	sb.WriteString(` RETURNING id, order_id, product_id, product_variant_id, quantity, price_per_item`)

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert order items: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var oi domain.OrderItem
		if err := rows.Scan(&oi.ID, &oi.OrderID, &oi.ProductID, &oi.ProductVariantID, &oi.Quantity, &oi.PricePerItem); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, oi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// drainCart removes the items and resets the derived fields, but keeps the
// cart row: carts are durable per-user objects reused across orders.
func drainCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE carts
		 SET total_price = 0, discount = 0, spin_played = FALSE, spin_reward = NULL, updated_at = NOW()
		 WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("reset cart after order: %w", err)
	}
	return nil
}

func orderCreatedPayload(order domain.Order, items []domain.OrderItem) map[string]any {
	return map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_price": order.TotalPrice,
		"discount":    order.Discount,
		"shipping":    order.ShippingCost,
		"spin_reward": order.SpinReward,
		"items":       items,
		"created_at":  order.CreatedAt,
	}
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *Repository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_variant_id, quantity, price_per_item
		 FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var oi domain.OrderItem
		if err := rows.Scan(&oi.ID, &oi.OrderID, &oi.ProductID, &oi.ProductVariantID, &oi.Quantity, &oi.PricePerItem); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, oi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var conds []string
	var args []any
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) CountOrdersByStatus(ctx context.Context, userID *int64) (map[domain.OrderStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM orders`
	var args []any
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

// TransitionOrderStatus performs the guarded status write and queues the
// change event in the same transaction. Zero affected rows with an existing
// order means the status moved underneath the caller.
func (r *Repository) TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (domain.Order, error) {
	var order domain.Order
	err := r.runInTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE orders SET status = $3, updated_at = NOW()
		          WHERE id = $1 AND status = $2
		          RETURNING ` + orderColumns

		var err error
		order, err = scanOrder(tx.QueryRowContext(ctx, query, orderID, from, to))
		if errors.Is(err, ErrOrderNotFound) {
			var exists bool
			if e2 := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); e2 != nil {
				return fmt.Errorf("check order: %w", e2)
			}
			if exists {
				return ErrStatusConflict
			}
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		return insertOutboxEvent(ctx, tx, orderID.String(), EventOrderStatusChanged, map[string]any{
			"order_id": orderID,
			"from":     from,
			"to":       to,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *Repository) SetOrderDeliverySpeed(ctx context.Context, orderID uuid.UUID, threeHour bool) (domain.Order, error) {
	query := `UPDATE orders SET is_three_hour_delivery = $2, updated_at = NOW()
	          WHERE id = $1
	          RETURNING ` + orderColumns
	return scanOrder(r.db.QueryRowContext(ctx, query, orderID, threeHour))
}

// RecordPayment stores an external payment confirmation and flips the order
// to PAID atomically. The unique transaction uuid makes retries idempotent.
func (r *Repository) RecordPayment(ctx context.Context, payment domain.OrderPayment) (domain.OrderPayment, error) {
	var recorded domain.OrderPayment
	err := r.runInTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO order_payments (order_id, user_id, amount, transaction_uuid, transaction_code)
		          VALUES ($1, $2, $3, $4, $5)
		          RETURNING id, order_id, user_id, amount, transaction_uuid, transaction_code, created_at`

		err := tx.QueryRowContext(ctx, query,
			payment.OrderID, payment.UserID, payment.Amount, payment.TransactionUUID, payment.TransactionCode,
		).Scan(&recorded.ID, &recorded.OrderID, &recorded.UserID, &recorded.Amount,
			&recorded.TransactionUUID, &recorded.TransactionCode, &recorded.CreatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicatePayment
			}
			return fmt.Errorf("insert payment: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET payment_status = $2, payment_method = $3, updated_at = NOW() WHERE id = $1`,
			payment.OrderID, domain.PaymentStatusPaid, domain.PaymentMethodOnline)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
	if err != nil {
		return domain.OrderPayment{}, err
	}
	return recorded, nil
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, aggregateID, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		aggregateID, eventType, body); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE NOT processed ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
