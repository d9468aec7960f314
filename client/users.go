package client

import (
	"context"
	"net/http"

	"github.com/trezcool/kalamu/core/user"
)

type (
	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	successResponse struct {
		Success string `json:"success"`
	}
)

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, nu user.NewUser) (*LoginResponse, error) {
	var res LoginResponse
	if err := c.call(ctx, http.MethodPost, "/users/register", nil, nu, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Login authenticates with a username or an email and keeps the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var res LoginResponse
	err := c.call(ctx, http.MethodPost, "/users/login", nil, loginRequest{Username: username, Password: password}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var res LoginResponse
	if err := c.call(ctx, http.MethodPost, "/users/token-refresh", nil, nil, &res); err != nil {
		return "", err
	}
	c.SetToken(res.Token)
	return res.Token, nil
}

func (c *Client) Me(ctx context.Context) (*user.User, error) {
	var usr user.User
	if err := c.call(ctx, http.MethodGet, "/users/me", nil, nil, &usr); err != nil {
		return nil, err
	}
	return &usr, nil
}

func (c *Client) UpdateMe(ctx context.Context, uu user.UpdateUser) (*user.User, error) {
	var usr user.User
	if err := c.call(ctx, http.MethodPut, "/users/me", nil, uu, &usr); err != nil {
		return nil, err
	}
	return &usr, nil
}

// RequestPasswordReset always succeeds for well-formed emails; the message is returned as is.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var res successResponse
	in := struct {
		Email string `json:"email"`
	}{email}
	if err := c.call(ctx, http.MethodPost, "/users/password-reset", nil, in, &res); err != nil {
		return "", err
	}
	return res.Success, nil
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, data user.ResetUserPassword) (string, error) {
	var res successResponse
	if err := c.call(ctx, http.MethodPost, "/users/password-reset-confirm", nil, data, &res); err != nil {
		return "", err
	}
	return res.Success, nil
}
