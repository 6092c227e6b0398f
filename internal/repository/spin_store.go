package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

const definitionColumns = `id, title, type, value, probability, is_active, created_at`

func scanDefinition(s interface{ Scan(...any) error }) (domain.SpinDefinition, error) {
	var d domain.SpinDefinition
	err := s.Scan(&d.ID, &d.Title, &d.Type, &d.Value, &d.Probability, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SpinDefinition{}, ErrDefinitionNotFound
	}
	if err != nil {
		return domain.SpinDefinition{}, fmt.Errorf("scan spin definition: %w", err)
	}
	return d, nil
}

// ListDefinitions returns definitions in id order. The weighted draw's
// cumulative tie-breaking depends on this order being stable.
func (r *Repository) ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.SpinDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM spin_definitions ORDER BY id`
	if activeOnly {
		query = `SELECT ` + definitionColumns + ` FROM spin_definitions WHERE is_active ORDER BY id`
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query spin definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.SpinDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return defs, nil
}

func (r *Repository) GetDefinition(ctx context.Context, id int64) (domain.SpinDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM spin_definitions WHERE id = $1`
	return scanDefinition(r.db.QueryRowContext(ctx, query, id))
}

// CreateDefinition inserts a definition after re-checking the probability
// invariant under an advisory transaction lock, so two concurrent creates
// that each pass the check alone cannot jointly exceed 1.
func (r *Repository) CreateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	var created domain.SpinDefinition
	err := r.runInTx(ctx, func(tx *sql.Tx) error {
		if err := lockDefinitions(ctx, tx); err != nil {
			return err
		}
		if def.IsActive {
			if err := checkProbabilityBudget(ctx, tx, def.Probability, 0); err != nil {
				return err
			}
		}

		query := `INSERT INTO spin_definitions (title, type, value, probability, is_active)
		          VALUES ($1, $2, $3, $4, $5)
		          RETURNING ` + definitionColumns
		var err error
		created, err = scanDefinition(tx.QueryRowContext(ctx, query,
			def.Title, def.Type, def.Value, def.Probability, def.IsActive))
		return err
	})
	if err != nil {
		return domain.SpinDefinition{}, err
	}
	return created, nil
}

// UpdateDefinition re-validates the invariant against the post-update active
// set: the row's own prior contribution is excluded before its new value is
// added back.
func (r *Repository) UpdateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	var updated domain.SpinDefinition
	err := r.runInTx(ctx, func(tx *sql.Tx) error {
		if err := lockDefinitions(ctx, tx); err != nil {
			return err
		}
		if def.IsActive {
			if err := checkProbabilityBudget(ctx, tx, def.Probability, def.ID); err != nil {
				return err
			}
		}

		query := `UPDATE spin_definitions
		          SET title = $2, type = $3, value = $4, probability = $5, is_active = $6
		          WHERE id = $1
		          RETURNING ` + definitionColumns
		var err error
		updated, err = scanDefinition(tx.QueryRowContext(ctx, query,
			def.ID, def.Title, def.Type, def.Value, def.Probability, def.IsActive))
		return err
	})
	if err != nil {
		return domain.SpinDefinition{}, err
	}
	return updated, nil
}

func (r *Repository) DeleteDefinition(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM spin_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete spin definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

// ApplySpinResult persists a resolved spin in one conditional write. The
// spin_played guard makes the operation exactly-once: the loser of a race
// affects zero rows and gets ErrSpinAlreadyPlayed. Cashback is applied as an
// in-row delta, so the total a concurrent item change recomputed between the
// eligibility read and this write survives intact.
func (r *Repository) ApplySpinResult(ctx context.Context, cartID int64, out domain.SpinOutcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE carts
		 SET spin_played = TRUE, spin_reward = $2, discount = $3,
		     shipping_cost = $4, total_price = total_price - $5, updated_at = NOW()
		 WHERE id = $1 AND spin_played = FALSE`,
		cartID, out.RewardTag, out.Discount, out.ShippingCost, out.Cashback)
	if err != nil {
		return fmt.Errorf("apply spin result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSpinAlreadyPlayed
	}
	return nil
}

func lockDefinitions(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, spinDefinitionsLockKey); err != nil {
		return fmt.Errorf("acquire definitions lock: %w", err)
	}
	return nil
}

func checkProbabilityBudget(ctx context.Context, tx *sql.Tx, probability float64, excludeID int64) error {
	var current float64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(probability), 0) FROM spin_definitions WHERE is_active AND id <> $1`,
		excludeID).Scan(&current)
	if err != nil {
		return fmt.Errorf("sum active probabilities: %w", err)
	}
	if current+probability > 1 {
		return fmt.Errorf("%w: current %.4f, proposed %.4f", ErrProbabilityExceeded, current, probability)
	}
	return nil
}
