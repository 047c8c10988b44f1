package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}
	if product.Version == 0 {
		product.Version = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, title, media, category, price_minor, on_hand,
			rush_eligible, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		product.ID, product.Title, string(product.Media), product.Category,
		product.PriceMinor, product.OnHand, product.RushEligible,
		product.Version, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s already exists", product.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	var media string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, media, category, price_minor, on_hand,
		       rush_eligible, version, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Title, &media, &product.Category,
		&product.PriceMinor, &product.OnHand, &product.RushEligible,
		&product.Version, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	product.Media = domain.MediaType(media)

	return product, nil
}

// ApplyStockChange выполняет условную запись остатка: сравнение версии строки
// и запись нового количества проходят одним UPDATE, конкурирующие писатели
// получают ErrVersionConflict и перечитывают товар сами.
func (r *productRepository) ApplyStockChange(id string, newOnHand int32, expectedVersion int64) (int64, error) {
	if newOnHand < 0 {
		return 0, domain.ErrInsufficientStock
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var newVersion int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET on_hand = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND version = $3
		RETURNING version
	`, id, newOnHand, expectedVersion).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("apply stock change: %w", err)
	}

	// Строка не затронута: либо товара нет, либо версия устарела.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check product existence: %w", err)
	}
	if !exists {
		return 0, domain.ErrProductNotFound
	}

	return 0, domain.ErrVersionConflict
}

var _ domain.ProductRepository = (*productRepository)(nil)
