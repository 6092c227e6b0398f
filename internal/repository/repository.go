package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrVariantNotFound    = errors.New("product variant not found")
	ErrDefinitionNotFound = errors.New("spin definition not found")
	ErrAddressNotFound    = errors.New("address not found")
	ErrOrderNotFound      = errors.New("order not found")

	// ErrCartExists is the loser's side of two first requests racing to
	// create a user's cart; callers re-read the winner's row.
	ErrCartExists = errors.New("cart already exists for this user")

	// ErrCartEmpty is the in-transaction re-check during order creation;
	// it fires when a concurrent checkout drained the cart first.
	ErrCartEmpty = errors.New("cart has no items")

	// ErrSpinAlreadyPlayed comes from the conditional spin write: zero rows
	// means another request flipped spin_played first.
	ErrSpinAlreadyPlayed = errors.New("spin already played for this cart")

	ErrProbabilityExceeded = errors.New("active spin probabilities would exceed 1")
	ErrDuplicatePayment    = errors.New("payment already recorded for this transaction")
	ErrStatusConflict      = errors.New("order status changed concurrently")

	// ErrPriceUnresolved means a cart item references a variant that no
	// longer exists. That is a data-integrity fault, never a fallback to
	// the product price or zero.
	ErrPriceUnresolved = errors.New("cart item price could not be resolved")
)

// advisory lock key serializing spin-definition writes so two concurrent
// creates cannot jointly push the active probability sum past 1
const spinDefinitionsLockKey = 824142

type CartStore interface {
	CreateCart(ctx context.Context, userID *int64) (domain.Cart, error)
	GetCart(ctx context.Context, cartID int64) (domain.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (domain.Cart, error)
	ListPricedItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)
	GetItem(ctx context.Context, itemID int64) (domain.CartItem, error)
	UpsertItem(ctx context.Context, cartID int64, item domain.NewCartItem) (domain.CartItem, error)
	BulkUpsertItems(ctx context.Context, cartID int64, items []domain.NewCartItem, message *string) error
	SetItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, itemID int64) error
	SetCartTotal(ctx context.Context, cartID int64, total float64) error
	SetCartMessage(ctx context.Context, cartID int64, message *string) error
	ResetCart(ctx context.Context, cartID int64) error
	MissingProducts(ctx context.Context, ids []int64) ([]int64, error)
	MissingVariants(ctx context.Context, ids []int64) ([]int64, error)
}

type SpinStore interface {
	GetCart(ctx context.Context, cartID int64) (domain.Cart, error)
	ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.SpinDefinition, error)
	GetDefinition(ctx context.Context, id int64) (domain.SpinDefinition, error)
	CreateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error)
	UpdateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error)
	DeleteDefinition(ctx context.Context, id int64) error
	ApplySpinResult(ctx context.Context, cartID int64, out domain.SpinOutcome) error
}

type CreateOrderParams struct {
	UserID        int64
	AddressID     *int64
	OrderType     domain.OrderType
	PaymentMethod domain.PaymentMethod
}

type OrderFilter struct {
	UserID *int64
	Status *domain.OrderStatus
	Limit  int
	Offset int
}

type OrderStore interface {
	GetCart(ctx context.Context, cartID int64) (domain.Cart, error)
	ListPricedItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)
	AddressExists(ctx context.Context, addressID int64) (bool, error)
	CreateOrderFromCart(ctx context.Context, cartID int64, p CreateOrderParams) (domain.Order, []domain.OrderItem, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	CountOrdersByStatus(ctx context.Context, userID *int64) (map[domain.OrderStatus]int, error)
	TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (domain.Order, error)
	SetOrderDeliverySpeed(ctx context.Context, orderID uuid.UUID, threeHour bool) (domain.Order, error)
	RecordPayment(ctx context.Context, payment domain.OrderPayment) (domain.OrderPayment, error)
}

// OutboxEvent is written in the same transaction as the order change it
// describes and drained by the publisher.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// runInTx executes fn inside one transaction; any error rolls the whole
// unit of work back.
func (r *Repository) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
