package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/model"
)

func TestProducts_CRUD(t *testing.T) {
	s := newTestServer(t)
	admin := s.bearer(t, "1", auth.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/products", admin, jsonBody{"name": "iPhone", "price": 999.5, "description": "phone"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Product](t, rec)
	id := created.ID.Hex()

	rec = s.do(t, http.MethodGet, "/api/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "iPhone", decode[model.Product](t, rec).Name)

	rec = s.do(t, http.MethodPut, "/api/products/"+id, admin, jsonBody{"name": "iPhone 2", "price": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[model.Product](t, rec)
	assert.Equal(t, "iPhone 2", updated.Name)
	assert.Zero(t, updated.Price)

	rec = s.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Product](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/api/products/"+id, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Product deleted successfully", decode[messageBody](t, rec).Message)

	rec = s.do(t, http.MethodGet, "/api/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", decode[messageBody](t, rec).Message)
}

func TestProducts_Gates(t *testing.T) {
	s := newTestServer(t)
	body := jsonBody{"name": "iMac", "price": 10}

	rec := s.do(t, http.MethodPost, "/api/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/products", s.bearer(t, "2", auth.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decode[messageBody](t, rec).Message)
	assert.Empty(t, s.products.items)
}

func TestProducts_BadInput(t *testing.T) {
	s := newTestServer(t)
	admin := s.bearer(t, "1", auth.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/products", admin, jsonBody{"name": "iPad", "price": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "must be greater than or equal to 0", decode[messageBody](t, rec).Fields["price"])

	rec = s.do(t, http.MethodPost, "/api/products", admin, jsonBody{"name": "iPad"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decode[messageBody](t, rec).Fields["price"])

	rec = s.do(t, http.MethodGet, "/api/products/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid id", decode[messageBody](t, rec).Message)
}
