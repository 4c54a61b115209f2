package order

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder means an order for this (session, shop) pair already
	// exists; materialization treats it as already done.
	ErrDuplicateOrder = errors.New("order for this session and shop already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	OrderExists(ctx context.Context, sessionID, shopID string) (bool, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error)
	RunMigrations(*Credentials) error
	Close() error
}
