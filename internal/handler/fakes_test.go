package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/metrics"
	"github.com/iliyamo/support-desk/internal/middleware"
	"github.com/iliyamo/support-desk/internal/model"
	"github.com/iliyamo/support-desk/internal/queue"
	"github.com/iliyamo/support-desk/internal/repository"
	"github.com/iliyamo/support-desk/internal/utils"
)

type fakeUsers struct {
	mu    sync.Mutex
	next  uint64
	byID  map[uint64]model.User
	email map[string]uint64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uint64]model.User{}, email: map[string]uint64{}}
}

func (f *fakeUsers) Create(_ context.Context, u repository.NewUser, cost int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := f.email[email]; ok {
		return 0, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return 0, err
	}
	f.next++
	f.byID[f.next] = model.User{ID: f.next, Name: u.Name, Email: email, PasswordHash: hash, Role: u.Role, IsActive: true}
	f.email[email] = f.next
	return f.next, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.email[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type fakeTokens struct {
	mu   sync.Mutex
	rows map[string]*refreshRow
}

func newFakeTokens() *fakeTokens { return &fakeTokens{rows: map[string]*refreshRow{}} }

func (f *fakeTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[hash] = &refreshRow{userID: userID, exp: exp}
	return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string, now time.Time) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[hash]
	if !ok || r.revoked || !now.Before(r.exp) {
		return 0, repository.ErrRefreshInvalid
	}
	return r.userID, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[hash]; ok {
		r.revoked = true
	}
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.userID == userID {
			r.revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) active(userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.userID == userID && !r.revoked {
			n++
		}
	}
	return n
}

type fakeProducts struct {
	mu    sync.Mutex
	items map[string]model.Product
}

func newFakeProducts() *fakeProducts { return &fakeProducts{items: map[string]model.Product{}} }

func (f *fakeProducts) Find(context.Context) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Product, 0, len(f.items))
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) FindByID(_ context.Context, id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, repository.ErrInvalidID
	}
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) Create(_ context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = bson.NewObjectID()
	p.CreatedAt, p.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	f.items[p.ID.Hex()] = *p
	return nil
}

func (f *fakeProducts) UpdateByID(ctx context.Context, id string, c repository.ProductChanges) (*model.Product, error) {
	p, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Name, p.Price, p.Description = c.Name, c.Price, c.Description
	f.items[id] = *p
	return p, nil
}

func (f *fakeProducts) DeleteByID(ctx context.Context, id string) (*model.Product, error) {
	p, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return p, nil
}

type fakeTickets struct {
	mu    sync.Mutex
	items map[string]model.Ticket
}

func newFakeTickets() *fakeTickets { return &fakeTickets{items: map[string]model.Ticket{}} }

func (f *fakeTickets) Find(_ context.Context, flt repository.TicketFilter) ([]model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Ticket{}
	for _, t := range f.items {
		if flt.UserID == "" || t.UserID == flt.UserID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTickets) FindByID(_ context.Context, id string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, repository.ErrInvalidID
	}
	t, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTickets) Create(_ context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = bson.NewObjectID()
	t.CreatedAt, t.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	f.items[t.ID.Hex()] = *t
	return nil
}

func (f *fakeTickets) UpdateByID(ctx context.Context, id string, c repository.TicketChanges) (*model.Ticket, error) {
	t, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Product != nil {
		t.Product = *c.Product
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	f.items[id] = *t
	return t, nil
}

func (f *fakeTickets) DeleteByID(ctx context.Context, id string) (*model.Ticket, error) {
	t, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return t, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []queue.TicketCreatedEvent
	err    error
}

func (r *recordingEvents) PublishTicketCreated(_ context.Context, ev queue.TicketCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

// testServer mounts every handler behind the real gates.
type testServer struct {
	e        *echo.Echo
	codec    *auth.Codec
	users    *fakeUsers
	tokens   *fakeTokens
	products *fakeProducts
	tickets  *fakeTickets
	events   *recordingEvents
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	codec, err := auth.NewCodec("handler-test-secret")
	require.NoError(t, err)

	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	s := &testServer{
		e:        echo.New(),
		codec:    codec,
		users:    newFakeUsers(),
		tokens:   newFakeTokens(),
		products: newFakeProducts(),
		tickets:  newFakeTickets(),
		events:   &recordingEvents{},
	}
	s.e.HTTPErrorHandler = middleware.ErrorHandler(log)

	ah := NewAuthHandler(authConfig(), s.users, s.tokens, codec, log)
	ph := NewProductHandler(s.products)
	th := NewTicketHandler(s.tickets, s.events, log)

	authn := middleware.Authenticate(codec, log, m)
	admin := middleware.RequireRole(auth.Roles(auth.RoleAdmin), log, m)
	member := middleware.RequireRole(auth.Roles(auth.RoleAdmin, auth.RoleUser), log, m)

	s.e.POST("/api/users", ah.Register)
	s.e.POST("/api/users/login", ah.Login)
	s.e.POST("/api/users/refresh", ah.Refresh)
	s.e.POST("/api/users/logout", ah.Logout)
	s.e.GET("/api/users/me", ah.Me, authn)

	s.e.GET("/api/products", ph.List)
	s.e.GET("/api/products/:id", ph.Get)
	s.e.POST("/api/products", ph.Create, authn, admin)
	s.e.PUT("/api/products/:id", ph.Update, authn, admin)
	s.e.DELETE("/api/products/:id", ph.Delete, authn, admin)

	tg := s.e.Group("/api/tickets", authn, member)
	tg.GET("", th.List)
	tg.POST("", th.Create)
	tg.GET("/:id", th.Get)
	tg.PUT("/:id", th.Update)
	tg.DELETE("/:id", th.Delete)
	return s
}

func (s *testServer) bearer(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	tok, _, err := s.codec.Encode(auth.Identity{SubjectID: subject, Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type jsonBody = map[string]any

type messageBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

