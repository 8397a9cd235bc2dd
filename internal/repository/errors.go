// Package repository contains data access logic separated from HTTP
// handlers. Accounts and refresh tokens live in MySQL; products and tickets
// are MongoDB documents. These sentinel values let handlers map storage
// outcomes onto HTTP statuses.
package repository

import "errors"

var (
	// ErrNotFound is returned when no row or document matches. Handlers
	// translate it into a 404 response.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for identifiers that cannot address a
	// document at all, such as a malformed ObjectID.
	ErrInvalidID = errors.New("invalid id")

	// ErrEmailExists is returned when registering an address already in use.
	ErrEmailExists = errors.New("email already exists")

	// ErrRefreshInvalid covers unknown, expired and revoked refresh tokens.
	ErrRefreshInvalid = errors.New("refresh token invalid")
)
