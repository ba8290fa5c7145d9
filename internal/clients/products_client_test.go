package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-service/internal/catalog"
)

func newProductsServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "tenant-1", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "cart-service", r.Header.Get("X-Internal-Service"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/products/shirt":
			_, _ = w.Write([]byte(`{"success":true,"data":{
				"id":"shirt","name":"Oxford","basePrice":40,"salePercent":25,
				"variants":[{"size":"M","color":"#000","stock":5}],
				"colorList":[{"name":"Black","hexCode":"#000"}]}}`))
		case "/api/v1/products/bag":
			_, _ = w.Write([]byte(`{"_id":"bag","name":"Tote","price":20,"sizes":{"One Size":3},"colors":["Tan"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestProductsClient_GetVariantedProduct(t *testing.T) {
	var hits int32
	server := newProductsServer(t, &hits)
	defer server.Close()

	client := NewProductsClient(server.URL)
	snapshot, err := client.GetProduct(context.Background(), "tenant-1", "shirt")
	require.NoError(t, err)

	product, ok := snapshot.(catalog.VariantedProduct)
	require.True(t, ok, "expected a varianted product, got %T", snapshot)
	assert.Equal(t, "shirt", product.ID)
	assert.Equal(t, 40.0, product.BasePrice)
	assert.Equal(t, 25.0, product.SalePercent)
	require.Len(t, product.Variants, 1)
	assert.Equal(t, []catalog.Color{{Name: "Black", HexCode: "#000"}}, product.ColorList)
}

func TestProductsClient_GetLegacyProduct(t *testing.T) {
	var hits int32
	server := newProductsServer(t, &hits)
	defer server.Close()

	client := NewProductsClient(server.URL)
	snapshot, err := client.GetProduct(context.Background(), "tenant-1", "bag")
	require.NoError(t, err)

	product, ok := snapshot.(catalog.LegacyProduct)
	require.True(t, ok, "expected a legacy product, got %T", snapshot)
	assert.Equal(t, "bag", product.ID)
	assert.Equal(t, 20.0, product.BasePrice)
	assert.Equal(t, catalog.SizeTable{{Label: "One Size", Stock: 3}}, product.SizeTable)
	assert.Equal(t, []catalog.Color{{Name: "Tan", HexCode: "Tan"}}, product.ColorList)
}

func TestProductsClient_NotFound(t *testing.T) {
	var hits int32
	server := newProductsServer(t, &hits)
	defer server.Close()

	client := NewProductsClient(server.URL)
	_, err := client.GetProduct(context.Background(), "tenant-1", "missing")

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductsClient_CachesAndInvalidates(t *testing.T) {
	var hits int32
	server := newProductsServer(t, &hits)
	defer server.Close()

	client := NewProductsClient(server.URL)
	ctx := context.Background()

	_, err := client.GetProduct(ctx, "tenant-1", "shirt")
	require.NoError(t, err)
	_, err = client.GetProduct(ctx, "tenant-1", "shirt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	client.InvalidateCache(ctx, "tenant-1", "shirt")
	_, err = client.GetProduct(ctx, "tenant-1", "shirt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	client.InvalidateTenantCache(ctx, "tenant-1")
	_, err = client.GetProduct(ctx, "tenant-1", "shirt")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestProductsClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewProductsClient(server.URL)
	_, err := client.GetProduct(context.Background(), "tenant-1", "shirt")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductNotFound)
	assert.Contains(t, err.Error(), "502")
}
