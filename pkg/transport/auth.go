// Package transport issues dispatcher requests against API gateways, either
// directly over HTTP or through COMMS request/reply.
package transport

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// AuthProvider supplies the Authorization header value for a call. An empty
// value sends no header.
type AuthProvider interface {
	Authorization(ctx context.Context) (string, error)
}

// AuthFunc adapts a function to AuthProvider.
type AuthFunc func(ctx context.Context) (string, error)

// Authorization implements AuthProvider.
func (f AuthFunc) Authorization(ctx context.Context) (string, error) {
	return f(ctx)
}

// NoAuth sends no Authorization header.
func NoAuth() AuthProvider {
	return AuthFunc(func(context.Context) (string, error) { return "", nil })
}

// StaticAuth sends token verbatim.
func StaticAuth(token string) AuthProvider {
	return AuthFunc(func(context.Context) (string, error) { return token, nil })
}

// TokenSourceAuth sends the ID token of the current session when the token
// source provides one, and the access token otherwise. The gateways expect
// the bare JWT, without a "Bearer" prefix.
func TokenSourceAuth(ts oauth2.TokenSource) AuthProvider {
	return AuthFunc(func(context.Context) (string, error) {
		if ts == nil {
			return "", fmt.Errorf("transport:auth - nil token source")
		}
		tok, err := ts.Token()
		if err != nil {
			return "", fmt.Errorf("transport:auth - fetch token: %w", err)
		}
		if id, ok := tok.Extra("id_token").(string); ok && id != "" {
			return id, nil
		}
		return tok.AccessToken, nil
	})
}

func authorization(ctx context.Context, auth AuthProvider) (string, error) {
	if auth == nil {
		return "", nil
	}
	return auth.Authorization(ctx)
}
