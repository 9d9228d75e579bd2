package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, search string) ([]Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	ListPurchases(ctx context.Context, search string) ([]PurchaseEntry, error)
	ListSales(ctx context.Context, search string) ([]SaleEntry, error)
	Stats(ctx context.Context) (Stats, error)
}

// TxRepository exposes the write operations available inside a transaction.
type TxRepository interface {
	InsertProduct(ctx context.Context, product Product) (int64, error)
	UpdateProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, id int64) error
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	SetProductQuantity(ctx context.Context, id, quantity int64, updatedAt time.Time) error
	InsertPurchase(ctx context.Context, purchase Purchase) (int64, error)
	InsertSale(ctx context.Context, sale Sale) (int64, error)
}

// IdempotencyPort abstracts the idempotency-key store used by the
// recording operations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key string) error
}

// Service coordinates ledger operations. Recording transactions run inside a
// single storage transaction that locks the product row, so the stock guard
// and the quantity update cannot interleave with another recording.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service. The idempotency store may be nil.
func NewService(repo RepositoryPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idempotency: idem, logger: logger}
}

// CreateProduct adds a new product with an initial quantity.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.Name == "" {
		return Product{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if input.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if input.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if input.ReorderLevel < 0 {
		return Product{}, fmt.Errorf("%w: reorder level must not be negative", ErrValidation)
	}

	now := time.Now().UTC()
	product := Product{
		Name:         input.Name,
		Category:     input.Category,
		Price:        input.Price,
		Quantity:     input.Quantity,
		ReorderLevel: input.ReorderLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// UpdateProduct overwrites the editable fields of a product. A non-nil
// Quantity is a manual stock correction and bypasses the ledger history.
func (s *Service) UpdateProduct(ctx context.Context, id int64, update ProductUpdate) (Product, error) {
	if update.Name == "" {
		return Product{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	if update.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if update.ReorderLevel < 0 {
		return Product{}, fmt.Errorf("%w: reorder level must not be negative", ErrValidation)
	}
	if update.Quantity != nil && *update.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.Name = update.Name
		current.Category = update.Category
		current.Price = update.Price
		current.ReorderLevel = update.ReorderLevel
		if update.Quantity != nil {
			current.Quantity = *update.Quantity
		}
		current.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateProduct(ctx, current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// DeleteProduct removes a product. Purchase and sale history referencing it
// is kept and resolves to an unknown-product placeholder on listing.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteProduct(ctx, id)
	})
}

// GetProduct fetches one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns all products, optionally filtered by a
// case-insensitive substring match on name or category.
func (s *Service) ListProducts(ctx context.Context, search string) ([]Product, error) {
	return s.repo.ListProducts(ctx, search)
}

// LowStockProducts returns products strictly below their reorder level.
func (s *Service) LowStockProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// AdjustQuantity applies a delta to a product's quantity. The resulting
// quantity must not go negative.
func (s *Service) AdjustQuantity(ctx context.Context, id, delta int64) (Product, error) {
	if delta == 0 {
		return Product{}, fmt.Errorf("%w: delta must not be zero", ErrValidation)
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		newQty := current.Quantity + delta
		if newQty < 0 {
			return ErrInsufficientStock
		}
		now := time.Now().UTC()
		if err := tx.SetProductQuantity(ctx, current.ID, newQty, now); err != nil {
			return err
		}
		current.Quantity = newQty
		current.UpdatedAt = now
		product = current
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// RecordPurchase appends a purchase entry and increments the product's
// quantity in one transaction.
func (s *Service) RecordPurchase(ctx context.Context, input RecordInput) (Purchase, error) {
	if err := validateRecordInput(input); err != nil {
		return Purchase{}, err
	}
	release, err := s.claimKey(ctx, input.IdempotencyKey, "purchase")
	if err != nil {
		return Purchase{}, err
	}

	now := time.Now().UTC()
	purchase := Purchase{
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		PurchasedAt: now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		return tx.SetProductQuantity(ctx, product.ID, product.Quantity+input.Quantity, now)
	})
	if err != nil {
		release(ctx)
		return Purchase{}, err
	}
	return purchase, nil
}

// RecordSale appends a sale entry and decrements the product's quantity in
// one transaction. The stock guard is evaluated under the same product row
// lock as the decrement, so quantity can never be driven negative.
func (s *Service) RecordSale(ctx context.Context, input RecordInput) (Sale, error) {
	if err := validateRecordInput(input); err != nil {
		return Sale{}, err
	}
	release, err := s.claimKey(ctx, input.IdempotencyKey, "sale")
	if err != nil {
		return Sale{}, err
	}

	now := time.Now().UTC()
	sale := Sale{
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		SoldAt:    now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.Quantity < input.Quantity {
			return ErrInsufficientStock
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		return tx.SetProductQuantity(ctx, product.ID, product.Quantity-input.Quantity, now)
	})
	if err != nil {
		release(ctx)
		return Sale{}, err
	}
	return sale, nil
}

// ListPurchases returns purchase history newest first, joined with product
// names, optionally filtered by resolved name substring.
func (s *Service) ListPurchases(ctx context.Context, search string) ([]PurchaseEntry, error) {
	return s.repo.ListPurchases(ctx, search)
}

// ListSales returns sale history newest first, joined with product names,
// optionally filtered by resolved name substring.
func (s *Service) ListSales(ctx context.Context, search string) ([]SaleEntry, error) {
	return s.repo.ListSales(ctx, search)
}

// Stats computes dashboard aggregates from the current collections.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func validateRecordInput(input RecordInput) error {
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrValidation)
	}
	return nil
}

// claimKey reserves an idempotency key when one was supplied and returns a
// release func used to give the key back on failure. Release runs on a
// context detached from the request: the recording often fails precisely
// because the request context died, and the key must still be freed so the
// client can retry.
func (s *Service) claimKey(ctx context.Context, key, scope string) (func(context.Context), error) {
	if key == "" || s.idempotency == nil {
		return func(context.Context) {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, scope); err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.idempotency.Release(releaseCtx, key); err != nil {
			s.logger.Warn("release idempotency key",
				slog.String("key", key),
				slog.String("scope", scope),
				slog.Any("error", err))
		}
	}, nil
}
