package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// PresenceRecord reports one contact's reachability.
type PresenceRecord struct {
	Email    string  `json:"email"`
	Online   bool    `json:"online"`
	LastSeen *string `json:"last_seen"`
}

// ListContacts returns the user's contact list.
func (c *Client) ListContacts(ctx context.Context) ([]User, error) {
	var out struct {
		Contacts []User `json:"contacts"`
	}
	if err := c.do(ctx, "GET", "/users/contacts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// AddContact adds the user with the given email to the contact list.
func (c *Client) AddContact(ctx context.Context, email string) error {
	return c.do(ctx, "POST", "/users/contacts", nil, map[string]string{"email": email}, nil)
}

// RemoveContact removes a contact by its user ID.
func (c *Client) RemoveContact(ctx context.Context, contactID int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/users/contacts/%d", contactID), nil, nil, nil)
}

// SearchUsers finds registered users matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var out struct {
		Results []User `json:"results"`
	}
	q := url.Values{"q": {query}}
	if err := c.do(ctx, "GET", "/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Presence returns online state for the given contact emails.
func (c *Client) Presence(ctx context.Context, emails []string) ([]PresenceRecord, error) {
	var out struct {
		Presence []PresenceRecord `json:"presence"`
	}
	q := url.Values{"emails": {strings.Join(emails, ",")}}
	if err := c.do(ctx, "GET", "/users/presence", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Presence, nil
}
