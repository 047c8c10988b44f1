package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) Create(reservation domain.StockReservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = now
	}
	if reservation.UpdatedAt.IsZero() {
		reservation.UpdatedAt = now
	}
	if reservation.Status == "" {
		reservation.Status = domain.ReservationStatusActive
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_reservations (
			id, order_id, product_id, qty, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		reservation.ID, reservation.OrderID, reservation.ProductID,
		reservation.Qty, string(reservation.Status),
		reservation.CreatedAt, reservation.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reservation %s already exists", reservation.ID)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) Get(id string) (domain.StockReservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var reservation domain.StockReservation
	var status string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, qty, status, created_at, updated_at
		FROM stock_reservations
		WHERE id = $1
	`, id).Scan(
		&reservation.ID, &reservation.OrderID, &reservation.ProductID,
		&reservation.Qty, &status, &reservation.CreatedAt, &reservation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockReservation{}, domain.ErrReservationNotFound
		}
		return domain.StockReservation{}, fmt.Errorf("select reservation: %w", err)
	}
	reservation.Status = domain.ReservationStatus(status)

	return reservation, nil
}

func (r *reservationRepository) ListByOrder(orderID string) ([]domain.StockReservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, qty, status, created_at, updated_at
		FROM stock_reservations
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]domain.StockReservation, 0)
	for rows.Next() {
		var reservation domain.StockReservation
		var status string
		if err := rows.Scan(
			&reservation.ID, &reservation.OrderID, &reservation.ProductID,
			&reservation.Qty, &status, &reservation.CreatedAt, &reservation.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservation.Status = domain.ReservationStatus(status)
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return reservations, nil
}

// UpdateStatus выполняет условный перевод статуса: строка обновляется
// только если её текущий статус совпал с from. Ноль затронутых строк
// означает отсутствие резерва либо проигранную гонку.
func (r *reservationRepository) UpdateStatus(id string, from, to domain.ReservationStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE stock_reservations
		SET status = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReservationNotFound
	}

	return nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
