package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/config"
	"github.com/iliyamo/support-desk/internal/middleware"
	"github.com/iliyamo/support-desk/internal/model"
	"github.com/iliyamo/support-desk/internal/repository"
	"github.com/iliyamo/support-desk/internal/utils"
)

const dbTimeout = 5 * time.Second

// UserStore is the account storage used by AuthHandler.
type UserStore interface {
	Create(ctx context.Context, u repository.NewUser, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore keeps refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
	Cfg    config.AuthConfig
	Users  UserStore
	Tokens TokenStore
	Codec  *auth.Codec
	Log    *zap.Logger
	Now    func() time.Time
}

// NewAuthHandler builds the account handlers. Now defaults to time.Now.
func NewAuthHandler(cfg config.AuthConfig, u UserStore, t TokenStore, codec *auth.Codec, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Codec: codec, Log: log, Now: time.Now}
}

type registerReq struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register creates a user account and signs it in. New accounts always get
// the user role.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, repository.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     string(auth.RoleUser),
	}, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return err
	}
	h.Log.Info("user registered", zap.Uint64("user_id", uid))
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new access and refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load user: %w", err)
	}
	if err != nil || !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash, h.Now().UTC())
	if errors.Is(err, repository.ErrRefreshInvalid) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}
	if err != nil {
		return fmt.Errorf("validate refresh: %w", err)
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return fmt.Errorf("revoke refresh: %w", err)
	}

	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body. Without one, a valid Bearer
// access token revokes every session of its owner. An empty body is fine; a
// body that does not bind is rejected.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash, h.Now().UTC()); err != nil {
			if errors.Is(err, repository.ErrRefreshInvalid) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
			}
			return fmt.Errorf("validate refresh: %w", err)
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return fmt.Errorf("revoke refresh: %w", err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Provide a refresh_token or an Authorization header")
	}
	id, err := auth.Authenticate(h.Codec, header)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized")
	}
	uid, err := strconv.ParseUint(id.SubjectID, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the profile of the authenticated caller.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.Identity(c)
	if !ok {
		return auth.ErrMissingIdentity
	}
	uid, err := strconv.ParseUint(id.SubjectID, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return storeError(err, "User not found")
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	role, ok := auth.ParseRole(u.Role)
	if !ok {
		return authResp{}, fmt.Errorf("user %d has unknown role %q", u.ID, u.Role)
	}
	access, exp, err := h.Codec.Encode(auth.Identity{
		SubjectID: strconv.FormatUint(u.ID, 10),
		Role:      role,
	}, h.Cfg.AccessTokenTTL)
	if err != nil {
		return authResp{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(h.Now(), h.Cfg.RefreshTokenTTL)
	if err != nil {
		return authResp{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, fmt.Errorf("store refresh token: %w", err)
	}
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access, Expires: exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
