package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	delivery := deliveryColumns(order.Delivery)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, status,
			recipient_name, recipient_phone, recipient_email,
			delivery_province, delivery_city, delivery_address,
			delivery_rush, delivery_instructions,
			subtotal_excl_vat, base_delivery_fee, rush_surcharge,
			delivery_fee, vat_amount, grand_total, free_shipping,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		order.ID, order.CustomerID, string(order.Status),
		delivery.recipientName, delivery.phone, delivery.email,
		delivery.province, delivery.city, delivery.address,
		delivery.rush, delivery.instructions,
		order.Totals.SubtotalExclVAT, order.Totals.BaseDeliveryFee, order.Totals.RushSurcharge,
		order.Totals.DeliveryFee, order.Totals.VATAmount, order.Totals.GrandTotal, order.Totals.FreeShipping,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists", order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, title, media, qty,
				price_minor, rush_eligible, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, order.ID, item.ProductID, item.Title, string(item.Media),
			item.Qty, item.PriceMinor, item.RushEligible, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if order.Invoice != nil {
		if err = insertInvoiceTx(ctx, tx, order.ID, order.Invoice); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status,
		       recipient_name, recipient_phone, recipient_email,
		       delivery_province, delivery_city, delivery_address,
		       delivery_rush, delivery_instructions,
		       subtotal_excl_vat, base_delivery_fee, rush_surcharge,
		       delivery_fee, vat_amount, grand_total, free_shipping,
		       version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	if order.Invoice, err = r.loadInvoice(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, status,
		       recipient_name, recipient_phone, recipient_email,
		       delivery_province, delivery_city, delivery_address,
		       delivery_rush, delivery_instructions,
		       subtotal_excl_vat, base_delivery_fee, rush_surcharge,
		       delivery_fee, vat_amount, grand_total, free_shipping,
		       version, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
			return nil, err
		}
		if order.Invoice, err = r.loadInvoice(ctx, order.ID); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	delivery := deliveryColumns(order.Delivery)

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    recipient_name = $2,
		    recipient_phone = $3,
		    recipient_email = $4,
		    delivery_province = $5,
		    delivery_city = $6,
		    delivery_address = $7,
		    delivery_rush = $8,
		    delivery_instructions = $9,
		    subtotal_excl_vat = $10,
		    base_delivery_fee = $11,
		    rush_surcharge = $12,
		    delivery_fee = $13,
		    vat_amount = $14,
		    grand_total = $15,
		    free_shipping = $16,
		    version = version + 1,
		    updated_at = $17
		WHERE id = $18
		  AND version = $19
	`,
		string(order.Status),
		delivery.recipientName, delivery.phone, delivery.email,
		delivery.province, delivery.city, delivery.address,
		delivery.rush, delivery.instructions,
		order.Totals.SubtotalExclVAT, order.Totals.BaseDeliveryFee, order.Totals.RushSurcharge,
		order.Totals.DeliveryFee, order.Totals.VATAmount, order.Totals.GrandTotal, order.Totals.FreeShipping,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	if order.Invoice != nil {
		if err = insertInvoiceTx(ctx, tx, order.ID, order.Invoice); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, title, media, qty, price_minor, rush_eligible, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		var media string
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.Title, &media,
			&item.Qty, &item.PriceMinor, &item.RushEligible, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Media = domain.MediaType(media)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) loadInvoice(ctx context.Context, orderID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, subtotal_excl_vat, base_delivery_fee, rush_surcharge,
		       delivery_fee, vat_amount, grand_total, free_shipping,
		       transaction_id, issued_at
		FROM invoices
		WHERE order_id = $1
	`, orderID).Scan(
		&invoice.ID, &invoice.OrderID,
		&invoice.Totals.SubtotalExclVAT, &invoice.Totals.BaseDeliveryFee, &invoice.Totals.RushSurcharge,
		&invoice.Totals.DeliveryFee, &invoice.Totals.VATAmount, &invoice.Totals.GrandTotal,
		&invoice.Totals.FreeShipping,
		&invoice.TransactionID, &invoice.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	return &invoice, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order existence: %w", err)
	}
	return exists, nil
}

// insertInvoiceTx пишет снимок инвойса. Инвойс неизменяем, поэтому повторная
// запись того же заказа просто игнорируется.
func insertInvoiceTx(ctx context.Context, tx *sql.Tx, orderID string, invoice *domain.Invoice) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, order_id, subtotal_excl_vat, base_delivery_fee, rush_surcharge,
			delivery_fee, vat_amount, grand_total, free_shipping,
			transaction_id, issued_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (order_id) DO NOTHING
	`,
		invoice.ID, orderID,
		invoice.Totals.SubtotalExclVAT, invoice.Totals.BaseDeliveryFee, invoice.Totals.RushSurcharge,
		invoice.Totals.DeliveryFee, invoice.Totals.VATAmount, invoice.Totals.GrandTotal,
		invoice.Totals.FreeShipping,
		invoice.TransactionID, invoice.IssuedAt,
	); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

type deliveryRow struct {
	recipientName sql.NullString
	phone         sql.NullString
	email         sql.NullString
	province      sql.NullString
	city          sql.NullString
	address       sql.NullString
	rush          sql.NullBool
	instructions  sql.NullString
}

func deliveryColumns(info *domain.DeliveryInfo) deliveryRow {
	if info == nil {
		return deliveryRow{}
	}
	return deliveryRow{
		recipientName: sql.NullString{String: info.RecipientName, Valid: true},
		phone:         sql.NullString{String: info.Phone, Valid: true},
		email:         sql.NullString{String: info.Email, Valid: true},
		province:      sql.NullString{String: info.Province, Valid: true},
		city:          sql.NullString{String: info.City, Valid: true},
		address:       sql.NullString{String: info.Address, Valid: true},
		rush:          sql.NullBool{Bool: info.Rush, Valid: true},
		instructions:  sql.NullString{String: info.Instructions, Valid: true},
	}
}

func (d deliveryRow) toDomain() *domain.DeliveryInfo {
	if !d.recipientName.Valid {
		return nil
	}
	return &domain.DeliveryInfo{
		RecipientName: d.recipientName.String,
		Phone:         d.phone.String,
		Email:         d.email.String,
		Province:      d.province.String,
		City:          d.city.String,
		Address:       d.address.String,
		Rush:          d.rush.Bool,
		Instructions:  d.instructions.String,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		delivery deliveryRow
	)

	if err := row.Scan(
		&order.ID, &order.CustomerID, &status,
		&delivery.recipientName, &delivery.phone, &delivery.email,
		&delivery.province, &delivery.city, &delivery.address,
		&delivery.rush, &delivery.instructions,
		&order.Totals.SubtotalExclVAT, &order.Totals.BaseDeliveryFee, &order.Totals.RushSurcharge,
		&order.Totals.DeliveryFee, &order.Totals.VATAmount, &order.Totals.GrandTotal,
		&order.Totals.FreeShipping,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Delivery = delivery.toDomain()

	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
