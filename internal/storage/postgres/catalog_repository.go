package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CatalogRepository хранит товары и складские остатки в PostgreSQL.
// Реализует и чтение каталога, и мутации стока.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию каталога и инвентаря.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

// FindProduct возвращает товар по идентификатору.
func (r *CatalogRepository) FindProduct(ctx context.Context, id string) (domain.Product, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		product domain.Product
		sizes   []byte
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name, price_minor, sizes, stock_quantity, in_stock
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.PriceMinor, &sizes, &product.StockQuantity, &product.InStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &product.Sizes); err != nil {
			return domain.Product{}, fmt.Errorf("unmarshal product sizes: %w", err)
		}
	}

	return product, nil
}

// UpsertProduct создаёт или обновляет запись товара.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sizes, err := json.Marshal(product.Sizes)
	if err != nil {
		return fmt.Errorf("marshal product sizes: %w", err)
	}

	if _, err := r.db.ExecContext(queryCtx, `
		INSERT INTO products (id, name, price_minor, sizes, stock_quantity, in_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    sizes = EXCLUDED.sizes,
		    stock_quantity = EXCLUDED.stock_quantity,
		    in_stock = EXCLUDED.in_stock,
		    updated_at = NOW()
	`, product.ID, product.Name, product.PriceMinor, sizes, product.StockQuantity, product.InStock); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	return nil
}

// Reserve атомарно списывает остаток по каждой позиции в одной транзакции.
// Списание условное (compare-and-decrement), при нехватке хотя бы одной
// позиции транзакция откатывается целиком.
func (r *CatalogRepository) Reserve(ctx context.Context, items []domain.OrderItem) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(queryCtx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		var res sql.Result
		res, err = tx.ExecContext(queryCtx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1,
			    in_stock = (stock_quantity - $1) > 0,
			    updated_at = $2
			WHERE id = $3
			  AND stock_quantity >= $1
		`, item.Qty, time.Now().UTC(), item.ProductID)
		if err != nil {
			return fmt.Errorf("reserve stock for %s: %w", item.ProductID, err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for reserve %s: %w", item.ProductID, err)
		}
		if affected == 0 {
			var exists bool
			exists, err = r.productExistsTx(queryCtx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if !exists {
				err = domain.ErrProductNotFound
				return err
			}
			err = domain.ErrInsufficientStock
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}

	return nil
}

// Release возвращает остаток (компенсация при отмене) и снимает флаг out-of-stock.
func (r *CatalogRepository) Release(ctx context.Context, items []domain.OrderItem) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(queryCtx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		if _, err = tx.ExecContext(queryCtx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $1,
			    in_stock = TRUE,
			    updated_at = $2
			WHERE id = $3
		`, item.Qty, time.Now().UTC(), item.ProductID); err != nil {
			return fmt.Errorf("release stock for %s: %w", item.ProductID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}

	return nil
}

func (r *CatalogRepository) productExistsTx(ctx context.Context, tx *sql.Tx, productID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var (
	_ domain.Catalog         = (*CatalogRepository)(nil)
	_ domain.InventoryLedger = (*CatalogRepository)(nil)
)
