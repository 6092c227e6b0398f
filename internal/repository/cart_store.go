package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

const cartColumns = `id, user_id, total_price, discount, shipping_cost, spin_played, spin_reward, message, created_at, updated_at`

func scanCart(row *sql.Row) (domain.Cart, error) {
	var c domain.Cart
	err := row.Scan(
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
		return domain.Cart{}, fmt.Errorf("scan cart: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateCart(ctx context.Context, userID *int64) (domain.Cart, error) {
	query := `INSERT INTO carts (user_id) VALUES ($1) RETURNING ` + cartColumns
	cart, err := scanCart(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.Cart{}, ErrCartExists
		}
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *Repository) GetCart(ctx context.Context, cartID int64) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`
	return scanCart(r.db.QueryRowContext(ctx, query, cartID))
}

func (r *Repository) GetCartByUser(ctx context.Context, userID int64) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
	return scanCart(r.db.QueryRowContext(ctx, query, userID))
}

// pricedItemsQuery resolves each item's unit price at read time: the variant
// price strictly wins when a variant is selected. variant_missing flags an
// item whose variant row is gone; callers treat that as an integrity fault.
const pricedItemsQuery = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.product_variant_id, ci.quantity, ci.added_at,
	       COALESCE(pv.price, p.price) AS unit_price,
	       (ci.product_variant_id IS NOT NULL AND pv.id IS NULL) AS variant_missing
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	LEFT JOIN product_variants pv ON pv.id = ci.product_variant_id
	WHERE ci.cart_id = $1
	ORDER BY ci.id`

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listPricedItems(ctx context.Context, q rowQuerier, cartID int64) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, pricedItemsQuery, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		var variantMissing bool
		if err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.ProductID,
			&it.ProductVariantID,
			&it.Quantity,
			&it.AddedAt,
			&it.UnitPrice,
			&variantMissing,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if variantMissing {
			return nil, fmt.Errorf("%w: item %d references variant %d", ErrPriceUnresolved, it.ID, *it.ProductVariantID)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (r *Repository) ListPricedItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	return listPricedItems(ctx, r.db, cartID)
}

func (r *Repository) GetItem(ctx context.Context, itemID int64) (domain.CartItem, error) {
	query := `SELECT id, cart_id, product_id, product_variant_id, quantity, added_at
	          FROM cart_items WHERE id = $1`

	var it domain.CartItem
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&it.ID,
		&it.CartID,
		&it.ProductID,
		&it.ProductVariantID,
		&it.Quantity,
		&it.AddedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartItem{}, ErrItemNotFound
	}
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("query cart item: %w", err)
	}
	return it, nil
}

// UpsertItem adds a row or increments the quantity of the existing
// (product, variant) row in one statement. The unique constraint on
// (cart_id, product_id, product_variant_id) with NULLS NOT DISTINCT makes the
// check-then-act race impossible: concurrent adds serialize on the index.
func (r *Repository) UpsertItem(ctx context.Context, cartID int64, item domain.NewCartItem) (domain.CartItem, error) {
	query := `INSERT INTO cart_items (cart_id, product_id, product_variant_id, quantity)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (cart_id, product_id, product_variant_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, added_at = NOW()
	          RETURNING id, cart_id, product_id, product_variant_id, quantity, added_at`

	var it domain.CartItem
	err := r.db.QueryRowContext(ctx, query, cartID, item.ProductID, item.ProductVariantID, item.Quantity).Scan(
		&it.ID,
		&it.CartID,
		&it.ProductID,
		&it.ProductVariantID,
		&it.Quantity,
		&it.AddedAt,
	)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return it, nil
}

// BulkUpsertItems applies a pre-validated, pre-merged batch in a single
// multi-row upsert so a batch of hundreds costs one round trip, plus the
// optional message write, all in one transaction.
func (r *Repository) BulkUpsertItems(ctx context.Context, cartID int64, items []domain.NewCartItem, message *string) error {
	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO cart_items (cart_id, product_id, product_variant_id, quantity) VALUES `)
	args := make([]any, 0, len(items)*4)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, cartID, it.ProductID, it.ProductVariantID, it.Quantity)
	}
	sb.WriteString(` ON CONFLICT (cart_id, product_id, product_variant_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, added_at = NOW()`)

	return r.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("bulk upsert cart items: %w", err)
		}
		if message != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE carts SET message = $2, updated_at = NOW() WHERE id = $1`, cartID, *message); err != nil {
				return fmt.Errorf("set cart message: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) SetItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, quantity)
	if err != nil {
		return fmt.Errorf("update item quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) SetCartTotal(ctx context.Context, cartID int64, total float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE carts SET total_price = $2, updated_at = NOW() WHERE id = $1`, cartID, total)
	if err != nil {
		return fmt.Errorf("update cart total: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repository) SetCartMessage(ctx context.Context, cartID int64, message *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE carts SET message = $2, updated_at = NOW() WHERE id = $1`, cartID, message)
	if err != nil {
		return fmt.Errorf("update cart message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCartNotFound
	}
	return nil
}

// ResetCart deletes all items and returns the cart to its pristine state,
// including re-arming the spin.
func (r *Repository) ResetCart(ctx context.Context, cartID int64) error {
	return r.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE carts
			 SET total_price = 0, discount = 0, shipping_cost = $2,
			     spin_played = FALSE, spin_reward = NULL, updated_at = NOW()
			 WHERE id = $1`, cartID, domain.DefaultShippingCost)
		if err != nil {
			return fmt.Errorf("reset cart: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrCartNotFound
		}
		return nil
	})
}

func (r *Repository) MissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	return r.missingIDs(ctx, `SELECT id FROM products WHERE id = ANY($1)`, ids)
}

func (r *Repository) MissingVariants(ctx context.Context, ids []int64) ([]int64, error) {
	return r.missingIDs(ctx, `SELECT id FROM product_variants WHERE id = ANY($1)`, ids)
}

func (r *Repository) missingIDs(ctx context.Context, query string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
