package api

import "context"

// User is the account record returned by the auth and user endpoints.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
}

// RegisterPayload is the account-creation request body.
type RegisterPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	req := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, "POST", "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, payload RegisterPayload) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "POST", "/auth/register", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the authenticated user's own record.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, "GET", "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
