package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/auth"
	"github.com/teamsbridge/teamsbridge/internal/models"
)

func newFakeGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "aad-1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(User{
			ID:                "aad-1",
			DisplayName:       "Ada Lovelace",
			Mail:              "ada@example.com",
			UserPrincipalName: "ada@example.com",
		})
	})

	// Two pages; the requested team is on the second one, exercising the
	// client-side filtering around the unreliable $filter.
	var srvURL string
	mux.HandleFunc("GET /teams", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			json.NewEncoder(w).Encode(map[string]any{
				"value": []Team{{ID: "team-2", DisplayName: "Platform"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value":           []Team{{ID: "team-1", DisplayName: "Sales"}},
			"@odata.nextLink": srvURL + "/teams?page=2",
		})
	})

	mux.HandleFunc("GET /teams/{id}/channels", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []Channel{
				{ID: "19:general", DisplayName: "General"},
				{ID: "19:eng", DisplayName: "Engineering"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	srvURL = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *Client {
	srv := newFakeGraph(t)
	return New(nil, zerolog.Nop(), WithBaseURL(srv.URL))
}

func TestUserByID(t *testing.T) {
	c := newTestClient(t)

	u, err := c.UserByID(context.Background(), "aad-1")
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if u.DisplayName != "Ada Lovelace" || u.UserPrincipalName != "ada@example.com" {
		t.Errorf("user = %+v", u)
	}
}

func TestTeamByNameFollowsPages(t *testing.T) {
	c := newTestClient(t)

	team, err := c.TeamByName(context.Background(), "Platform")
	if err != nil {
		t.Fatalf("TeamByName: %v", err)
	}
	if team.ID != "team-2" {
		t.Errorf("team = %+v", team)
	}

	_, err = c.TeamByName(context.Background(), "Nonexistent")
	if !errors.Is(err, models.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestChannelByName(t *testing.T) {
	c := newTestClient(t)

	ch, err := c.ChannelByName(context.Background(), "team-2", "Engineering")
	if err != nil {
		t.Fatalf("ChannelByName: %v", err)
	}
	if ch.ID != "19:eng" {
		t.Errorf("channel = %+v", ch)
	}

	_, err = c.ChannelByName(context.Background(), "team-2", "Marketing")
	if !errors.Is(err, models.ErrChannelNotFound) {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestUnauthorizedMapsToAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(nil, zerolog.Nop(), WithBaseURL(srv.URL))
	_, err := c.UserByID(context.Background(), "aad-1")

	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", authErr.Status)
	}
}
