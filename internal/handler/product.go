package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/support-desk/internal/model"
	"github.com/iliyamo/support-desk/internal/repository"
)

// ProductStore is the document storage behind ProductHandler.
type ProductStore interface {
	Find(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id string) (*model.Product, error)
	Create(ctx context.Context, p *model.Product) error
	UpdateByID(ctx context.Context, id string, c repository.ProductChanges) (*model.Product, error)
	DeleteByID(ctx context.Context, id string) (*model.Product, error)
}

type ProductHandler struct {
	Products ProductStore
}

// NewProductHandler builds the product handlers on top of s.
func NewProductHandler(s ProductStore) *ProductHandler { return &ProductHandler{Products: s} }

type productReq struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Description string   `json:"description" validate:"max=2000"`
}

const productNotFound = "Product not found"

// List returns the whole catalogue, newest first. GET /api/products.
func (h *ProductHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	items, err := h.Products.Find(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns one product. A malformed id is a 400; an unknown one is a 404.
func (h *ProductHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Products.FindByID(ctx, c.Param("id"))
	if err != nil {
		return storeError(err, productNotFound)
	}
	return c.JSON(http.StatusOK, p)
}

// Create validates the payload and stores a new product. Admin only.
func (h *ProductHandler) Create(c echo.Context) error {
	var req productReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p := &model.Product{Name: req.Name, Price: *req.Price, Description: req.Description}
	if err := h.Products.Create(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Update replaces every mutable field, like the create payload.
func (h *ProductHandler) Update(c echo.Context) error {
	var req productReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Products.UpdateByID(ctx, c.Param("id"), repository.ProductChanges{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
	})
	if err != nil {
		return storeError(err, productNotFound)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a product and echoes it back with a confirmation message.
func (h *ProductHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Products.DeleteByID(ctx, c.Param("id"))
	if err != nil {
		return storeError(err, productNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Product deleted successfully",
		"product": p,
	})
}
