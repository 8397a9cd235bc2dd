package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/middleware"
	"github.com/iliyamo/support-desk/internal/model"
	"github.com/iliyamo/support-desk/internal/queue"
	"github.com/iliyamo/support-desk/internal/repository"
)

// TicketStore is the document storage behind TicketHandler.
type TicketStore interface {
	Find(ctx context.Context, f repository.TicketFilter) ([]model.Ticket, error)
	FindByID(ctx context.Context, id string) (*model.Ticket, error)
	Create(ctx context.Context, t *model.Ticket) error
	UpdateByID(ctx context.Context, id string, c repository.TicketChanges) (*model.Ticket, error)
	DeleteByID(ctx context.Context, id string) (*model.Ticket, error)
}

// TicketEvents receives ticket lifecycle events.
type TicketEvents interface {
	PublishTicketCreated(ctx context.Context, ev queue.TicketCreatedEvent) error
}

// TicketHandler serves tickets. Users only see their own tickets; admins
// see all of them.
type TicketHandler struct {
	Tickets TicketStore
	Events  TicketEvents
	Log     *zap.Logger
}

// NewTicketHandler wires the ticket store and the event publisher. ev may be
// nil when publishing is disabled.
func NewTicketHandler(s TicketStore, ev TicketEvents, log *zap.Logger) *TicketHandler {
	return &TicketHandler{Tickets: s, Events: ev, Log: log}
}

type createTicketReq struct {
	Product     string `json:"product" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=5000"`
}

type updateTicketReq struct {
	Product     *string `json:"product" validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,min=1,max=5000"`
	Status      *string `json:"status" validate:"omitnil,oneof=new open closed"`
}

const ticketNotFound = "Ticket not found"

// List returns every ticket to admins and only their own tickets to users.
func (h *TicketHandler) List(c echo.Context) error {
	id, ok := middleware.Identity(c)
	if !ok {
		return auth.ErrMissingIdentity
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var f repository.TicketFilter
	if !id.IsAdmin() {
		f.UserID = id.SubjectID
	}
	items, err := h.Tickets.Find(ctx, f)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	return c.JSON(http.StatusOK, items)
}

// Create stores a ticket owned by the caller and announces it. A failed
// publish is logged; the ticket is already stored.
func (h *TicketHandler) Create(c echo.Context) error {
	id, ok := middleware.Identity(c)
	if !ok {
		return auth.ErrMissingIdentity
	}
	var req createTicketReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	t := &model.Ticket{
		UserID:      id.SubjectID,
		Product:     req.Product,
		Description: req.Description,
		Status:      model.TicketNew,
	}
	if err := h.Tickets.Create(ctx, t); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}

	if h.Events != nil {
		ev := queue.TicketCreatedEvent{
			TicketID:    t.ID.Hex(),
			UserID:      t.UserID,
			Product:     t.Product,
			Description: t.Description,
			Status:      string(t.Status),
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		}
		if err := h.Events.PublishTicketCreated(ctx, ev); err != nil {
			h.Log.Warn("publish ticket.created failed",
				zap.String("ticket_id", ev.TicketID),
				zap.Error(err))
		}
	}
	return c.JSON(http.StatusCreated, t)
}

// Get returns one ticket the caller may see.
func (h *TicketHandler) Get(c echo.Context) error {
	t, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// Update applies the given fields to a ticket the caller may see. Status
// must be one of the known ticket states.
func (h *TicketHandler) Update(c echo.Context) error {
	var req updateTicketReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if _, err := h.owned(c); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	changes := repository.TicketChanges{Product: req.Product, Description: req.Description}
	if req.Status != nil {
		s := model.TicketStatus(*req.Status)
		changes.Status = &s
	}
	t, err := h.Tickets.UpdateByID(ctx, c.Param("id"), changes)
	if err != nil {
		return storeError(err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, t)
}

// Delete removes a ticket the caller may see and echoes it back.
func (h *TicketHandler) Delete(c echo.Context) error {
	if _, err := h.owned(c); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	t, err := h.Tickets.DeleteByID(ctx, c.Param("id"))
	if err != nil {
		return storeError(err, ticketNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Ticket deleted successfully",
		"ticket":  t,
	})
}

// owned loads the ticket named in the path. Tickets owned by someone else
// are reported as missing unless the caller is an admin.
func (h *TicketHandler) owned(c echo.Context) (*model.Ticket, error) {
	id, ok := middleware.Identity(c)
	if !ok {
		return nil, auth.ErrMissingIdentity
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	t, err := h.Tickets.FindByID(ctx, c.Param("id"))
	if err != nil {
		return nil, storeError(err, ticketNotFound)
	}
	if !id.IsAdmin() && t.UserID != id.SubjectID {
		return nil, echo.NewHTTPError(http.StatusNotFound, ticketNotFound)
	}
	return t, nil
}
