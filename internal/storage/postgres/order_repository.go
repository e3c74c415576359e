package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// addressDoc — JSON-представление адреса в колонке orders.address.
type addressDoc struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func encodeAddress(a domain.ShippingAddress) ([]byte, error) {
	doc := addressDoc{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Zipcode:   a.Zipcode,
		Country:   a.Country,
		Phone:     a.Phone,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal shipping address: %w", err)
	}
	return raw, nil
}

func decodeAddress(raw []byte) (domain.ShippingAddress, error) {
	var doc addressDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ShippingAddress{}, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return domain.ShippingAddress{
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Email:     doc.Email,
		Street:    doc.Street,
		City:      doc.City,
		State:     doc.State,
		Zipcode:   doc.Zipcode,
		Country:   doc.Country,
		Phone:     doc.Phone,
	}, nil
}

const orderColumns = `
	id, owner_id, status, payment_method, address,
	currency, subtotal_minor, shipping_fee_minor, total_minor,
	payment_external_id, payment_status, payment_verified_at,
	payment_payer_email, payment_cancelled_at,
	is_settled, settled_at, delivered_at,
	version, created_at, updated_at`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	address, err := encodeAddress(order.Address)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, owner_id, status, payment_method, address,
			currency, subtotal_minor, shipping_fee_minor, total_minor,
			payment_external_id, payment_status, payment_verified_at,
			payment_payer_email, payment_cancelled_at,
			is_settled, settled_at, delivered_at,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.OwnerID, string(order.Status), string(order.Method), address,
		order.Currency, order.SubtotalMinor, order.ShippingFeeMinor, order.TotalMinor,
		order.Payment.ExternalID, order.Payment.Status, nullableTime(order.Payment.VerifiedAt),
		order.Payment.PayerEmail, order.Payment.CancelledAt,
		order.IsSettled, order.SettledAt, order.DeliveredAt,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for position, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, name, price_minor, size, qty
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			order.ID, position, item.ProductID, item.Name, item.PriceMinor, item.Size, item.Qty,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
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
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByOwner(ownerID string, limit int, includePending bool) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE owner_id = $1
	`
	if !includePending {
		query += ` AND status <> 'payment_pending'`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", ownerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}

		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
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

	address, err := encodeAddress(order.Address)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_method = $2,
		    address = $3,
		    payment_external_id = $4,
		    payment_status = $5,
		    payment_verified_at = $6,
		    payment_payer_email = $7,
		    payment_cancelled_at = $8,
		    is_settled = $9,
		    settled_at = $10,
		    delivered_at = $11,
		    version = version + 1,
		    updated_at = $12
		WHERE id = $13
		  AND version = $14
	`,
		string(order.Status),
		string(order.Method),
		address,
		order.Payment.ExternalID,
		order.Payment.Status,
		nullableTime(order.Payment.VerifiedAt),
		order.Payment.PayerEmail,
		order.Payment.CancelledAt,
		order.IsSettled,
		order.SettledAt,
		order.DeliveredAt,
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
		return domain.ErrOrderVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

func (r *orderRepository) CancelAbandoned(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	now := time.Now().UTC()

	// Условный bulk UPDATE: отменяются только строки, всё ещё находящиеся
	// в payment_pending на момент записи. SKIP LOCKED исключает блокировку
	// с параллельно подтверждаемыми заказами.
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    payment_cancelled_at = $3,
		    version = version + 1,
		    updated_at = $3
		WHERE id IN (
			SELECT id
			FROM orders
			WHERE status = $4
			  AND created_at < $5
			ORDER BY created_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		  AND status = $4
	`,
		string(domain.OrderStatusCancelled),
		domain.PaymentRecordAbandoned,
		now,
		string(domain.OrderStatusPaymentPending),
		before,
		limit,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel abandoned orders: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for abandoned sweep: %w", err)
	}

	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		method      string
		address     []byte
		verifiedAt  sql.NullTime
		cancelledAt sql.NullTime
		settledAt   sql.NullTime
		deliveredAt sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.OwnerID, &status, &method, &address,
		&order.Currency, &order.SubtotalMinor, &order.ShippingFeeMinor, &order.TotalMinor,
		&order.Payment.ExternalID, &order.Payment.Status, &verifiedAt,
		&order.Payment.PayerEmail, &cancelledAt,
		&order.IsSettled, &settledAt, &deliveredAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.Method = domain.PaymentMethod(method)

	decoded, err := decodeAddress(address)
	if err != nil {
		return domain.Order{}, err
	}
	order.Address = decoded

	if verifiedAt.Valid {
		order.Payment.VerifiedAt = verifiedAt.Time.UTC()
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		order.Payment.CancelledAt = &t
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		order.SettledAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		order.DeliveredAt = &t
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, price_minor, size, qty
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.PriceMinor, &item.Size, &item.Qty); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
