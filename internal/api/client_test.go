package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second), srv
}

func TestLogin(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/auth/login" {
			t.Errorf("got %s %s, want POST /auth/login", r.Method, r.URL.Path)
		}
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode credentials: %v", err)
		}
		if creds["email"] != "a@x.com" || creds["password"] != "secret" {
			t.Errorf("credentials = %v", creds)
		}
		json.NewEncoder(w).Encode(AuthResponse{
			User:        User{ID: 7, Email: "a@x.com", DisplayName: "Alice"},
			AccessToken: "tok",
		})
	})

	resp, err := client.Login(context.Background(), "a@x.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken != "tok" || resp.User.ID != 7 || resp.User.DisplayName != "Alice" {
		t.Errorf("response = %+v", resp)
	}
}

func TestBearerTokenOnAuthenticatedCalls(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		w.Write([]byte(`{"contacts":[{"id":1,"email":"b@x.com","display_name":"Bob"}]}`))
	})

	contacts, err := client.WithToken("tok").ListContacts(context.Background())
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Email != "b@x.com" {
		t.Errorf("contacts = %+v", contacts)
	}
}

func TestServerErrorMessageSurfaced(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	})

	_, err := client.Login(context.Background(), "a@x.com", "wrong")
	if err == nil {
		t.Fatal("Login succeeded against a 401")
	}
	if !strings.Contains(err.Error(), "invalid credentials") {
		t.Errorf("error %q does not carry the server message", err)
	}
}

func TestPresenceQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("emails"); got != "b@x.com,c@x.com" {
			t.Errorf("emails query = %q", got)
		}
		w.Write([]byte(`{"presence":[{"email":"b@x.com","online":true},{"email":"c@x.com","online":false}]}`))
	})

	records, err := client.Presence(context.Background(), []string{"b@x.com", "c@x.com"})
	if err != nil {
		t.Fatalf("Presence: %v", err)
	}
	if len(records) != 2 || !records[0].Online || records[1].Online {
		t.Errorf("records = %+v", records)
	}
}
