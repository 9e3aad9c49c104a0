package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/entity"
)

func testLogger() *slog.Logger { return slog.Default() }

func staffPrincipal() Principal {
	return Principal{ID: "staff-1", TenantID: "tenant-1"}
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]*Product{
		"burger": {ID: "burger", Name: "Burger", PriceCents: 5000, Active: true, Addons: map[string]ProductAddon{
			"cheese": {ID: "cheese", Name: "Extra cheese", PriceCents: 500},
		}},
		"fries": {ID: "fries", Name: "Fries", PriceCents: 1500, Active: true},
		"soda":  {ID: "soda", Name: "Soda", PriceCents: 800, Active: true},
		"off":   {ID: "off", Name: "Seasonal", PriceCents: 900, Active: false},
	}}
}

type createFixture struct {
	uc       *CreateOrder
	orders   *fakeOrderRepo
	payments *fakePaymentRepo
	provider *fakeProvider
	notifier *fakeNotifier
	idem     *fakeIdemStore
	gate     *fakeGate
}

func newCreateFixture() *createFixture {
	f := &createFixture{
		orders:   newFakeOrderRepo(),
		payments: newFakePaymentRepo(),
		provider: &fakeProvider{},
		notifier: &fakeNotifier{},
		idem:     newFakeIdemStore(),
		gate:     &fakeGate{},
	}
	f.uc = NewCreateOrder(
		f.orders, f.payments, testCatalog(), &fakeFactory{provider: f.provider},
		f.gate, f.notifier, f.idem, testLogger(), time.Second,
	)
	return f
}

func TestCreateOrder_TotalsNeverTrustClient(t *testing.T) {
	f := newCreateFixture()

	out, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelDelivery,
		Items: []CreateOrderItemInput{
			{ProductID: "burger", Quantity: 2}, // 100.00
			{ProductID: "fries", Quantity: 2},  // 30.00
			{ProductID: "soda", Quantity: 1},   // 8.00
		},
		DeliveryFeeCents: 1000,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Order)

	assert.Equal(t, int64(13800), out.Order.Subtotal.Cents)
	assert.Equal(t, int64(14800), out.Order.Total.Cents)
	assert.Equal(t, domain.OrderPending, out.Order.Status)

	stored, err := f.orders.Get(context.Background(), "tenant-1", out.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14800), stored.Total.Cents)
}

func TestCreateOrder_SubtotalDeliveryDiscountInvariant(t *testing.T) {
	f := newCreateFixture()

	// subtotal 150.00, deliveryFee 10.00, discount 0 -> total 160.00
	out, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelDelivery,
		Items: []CreateOrderItemInput{
			{ProductID: "burger", Quantity: 3}, // 150.00
		},
		DeliveryFeeCents: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), out.Order.Subtotal.Cents)
	assert.Equal(t, int64(16000), out.Order.Total.Cents)
}

func TestCreateOrder_AddonPricesSnapshotted(t *testing.T) {
	f := newCreateFixture()

	out, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelCounter,
		Items: []CreateOrderItemInput{
			{ProductID: "burger", Quantity: 1, AddonIDs: []string{"cheese"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Order.Items, 1)
	require.Len(t, out.Order.Items[0].Addons, 1)
	assert.Equal(t, int64(500), out.Order.Items[0].Addons[0].PriceCents)
	assert.Equal(t, int64(5500), out.Order.Subtotal.Cents)
}

func TestCreateOrder_RejectsInactiveAndUnknownProducts(t *testing.T) {
	f := newCreateFixture()

	_, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelCounter,
		Items:     []CreateOrderItemInput{{ProductID: "off", Quantity: 1}},
	})
	require.Error(t, err)

	_, err = f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelCounter,
		Items:     []CreateOrderItemInput{{ProductID: "ghost", Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrder_CollectPaymentCreatesCharge(t *testing.T) {
	f := newCreateFixture()

	out, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal:        staffPrincipal(),
		Channel:          domain.ChannelDelivery,
		Items:            []CreateOrderItemInput{{ProductID: "burger", Quantity: 1}},
		DeliveryFeeCents: 500,
		CollectPayment:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Payment)

	assert.Equal(t, out.Order.Total, out.Payment.Amount)
	assert.Equal(t, domain.PaymentPending, out.Payment.Status)
	assert.Equal(t, domain.ProviderGerencianet, out.Payment.Provider,
		"the configured provider must be recorded, webhook lookups key on it")
	assert.NotEmpty(t, out.Payment.ExternalID)
	assert.NotEmpty(t, out.Payment.QRCode)
	assert.Equal(t, 1, f.provider.createCalls)

	stored, err := f.payments.Get(context.Background(), "tenant-1", out.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGerencianet, stored.Provider)
}

func TestCreateOrder_IdempotencyKeyReturnsSameOrder(t *testing.T) {
	f := newCreateFixture()
	in := CreateOrderInput{
		Principal:      staffPrincipal(),
		IdempotencyKey: "req-1",
		Channel:        domain.ChannelCounter,
		Items:          []CreateOrderItemInput{{ProductID: "soda", Quantity: 1}},
	}

	first, err := f.uc.Execute(context.Background(), in)
	require.NoError(t, err)
	second, err := f.uc.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.notifier.byType(EventNewOrderReceived), 1, "retry must not re-announce the order")
}

func TestCreateOrder_TransientProviderFailureIsRetryable(t *testing.T) {
	f := newCreateFixture()
	f.provider.createErr = domain.ErrProviderUnavailable
	in := CreateOrderInput{
		Principal:      staffPrincipal(),
		IdempotencyKey: "req-2",
		Channel:        domain.ChannelDelivery,
		Items:          []CreateOrderItemInput{{ProductID: "burger", Quantity: 1}},
		CollectPayment: true,
	}

	out, err := f.uc.Execute(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.NotNil(t, out.Payment)
	assert.Equal(t, domain.PaymentPending, out.Payment.Status, "payment stays pending for retry")

	// Retry with the same key resumes the same order/payment and re-requests
	// the charge.
	f.provider.createErr = nil
	out2, err := f.uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, out.Order.ID, out2.Order.ID)
	assert.Equal(t, out.Payment.ID, out2.Payment.ID)
	assert.NotEmpty(t, out2.Payment.ExternalID)
}

func TestCreateOrder_PermanentProviderFailureClosesPayment(t *testing.T) {
	f := newCreateFixture()
	f.provider.createErr = domain.ErrConfigurationInvalid

	out, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal:      staffPrincipal(),
		Channel:        domain.ChannelDelivery,
		Items:          []CreateOrderItemInput{{ProductID: "burger", Quantity: 1}},
		CollectPayment: true,
	})
	require.ErrorIs(t, err, domain.ErrConfigurationInvalid)

	stored, err := f.payments.Get(context.Background(), "tenant-1", out.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, stored.Status)
}

func TestCreateOrder_GateDeniesCreation(t *testing.T) {
	f := newCreateFixture()
	f.gate.deny = map[string]bool{"orders.create": true}

	_, err := f.uc.Execute(context.Background(), CreateOrderInput{
		Principal: staffPrincipal(),
		Channel:   domain.ChannelCounter,
		Items:     []CreateOrderItemInput{{ProductID: "soda", Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
}
