package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	created []*Order
	err     error
	getErr  error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	for _, c := range m.created {
		if c.ID == o.ID {
			return nil
		}
	}
	stored := *o
	m.created = append(m.created, &stored)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, o := range m.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

// --- Helpers ---

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func newTestProduct(id string, stock int) product.Product {
	return product.Product{ID: id, Title: "Product " + id, Price: decimal.NewFromInt(10), Stock: stock}
}

func newTestOrder(items ...Item) *Order {
	return &Order{
		Items:          items,
		PaymentMethod:  "card",
		ShippingMethod: "Standard",
		Total:          decimal.RequireFromString("42.00"),
	}
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := NewService(newProductRepo(), &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), newTestOrder())
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	svc := NewService(newProductRepo(newTestProduct("p1", 5)), &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "p1", Quantity: 0}))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := NewService(newProductRepo(), &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "missing", Quantity: 1}))

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_StockChanged(t *testing.T) {
	svc := NewService(newProductRepo(newTestProduct("p1", 3)), &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(
		Item{ProductID: "p1", Variant: "red", Quantity: 2},
		Item{ProductID: "p1", Variant: "blue", Quantity: 2},
	))
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestPlaceOrder_Success(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newProductRepo(newTestProduct("p1", 5)), repo)
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	conf, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	assert.NotEmpty(t, conf.OrderID)
	assert.Equal(t, fixed, conf.CreatedAt)
	assert.True(t, decimal.RequireFromString("42").Equal(conf.Total))
	require.Len(t, repo.created, 1)
	assert.Equal(t, conf.OrderID, repo.created[0].ID)
}

func TestPlaceOrder_KeepsGivenID(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newProductRepo(newTestProduct("p1", 5)), repo)

	o := newTestOrder(Item{ProductID: "p1", Quantity: 1})
	o.ID = "order-1"

	conf, err := svc.PlaceOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "order-1", conf.OrderID)
}

func TestPlaceOrder_ProductLookupError(t *testing.T) {
	products := newProductRepo()
	products.getErr = errors.New("catalog down")
	svc := NewService(products, &mockOrderRepo{})

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	svc := NewService(
		newProductRepo(newTestProduct("p1", 5)),
		&mockOrderRepo{err: errors.New("db write failed")},
	)

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "p1", Quantity: 1}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestPlaceOrder_ResubmissionConfirmsStoredOrder(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := NewService(newProductRepo(newTestProduct("p1", 5)), repo)
	ctx := context.Background()

	first := newTestOrder(Item{ProductID: "p1", Quantity: 1})
	first.ID = "order-1"
	_, err := svc.PlaceOrder(ctx, first)
	require.NoError(t, err)

	retry := newTestOrder(Item{ProductID: "p1", Quantity: 3})
	retry.ID = "order-1"
	retry.Total = decimal.RequireFromString("99.00")
	conf, err := svc.PlaceOrder(ctx, retry)
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "order-1", conf.OrderID)
	assert.True(t, decimal.RequireFromString("42").Equal(conf.Total), "got %s", conf.Total)
	assert.Equal(t, repo.created[0].CreatedAt, conf.CreatedAt)
}

func TestPlaceOrder_ReadBackError(t *testing.T) {
	svc := NewService(
		newProductRepo(newTestProduct("p1", 5)),
		&mockOrderRepo{getErr: errors.New("replica lag")},
	)

	_, err := svc.PlaceOrder(context.Background(), newTestOrder(Item{ProductID: "p1", Quantity: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read back order")
}
