package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/graph"
	"github.com/teamsbridge/teamsbridge/internal/models"
)

func newGraphEnv(t *testing.T) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "aad-1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(graph.User{
			ID:          "aad-1",
			DisplayName: "Ada Lovelace",
			Mail:        "ada@example.com",
		})
	})
	mux.HandleFunc("GET /teams", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []graph.Team{{ID: "team-1", DisplayName: "Platform"}},
		})
	})
	mux.HandleFunc("GET /teams/{id}/channels", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []graph.Channel{{ID: "19:eng", DisplayName: "Engineering"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := graph.New(nil, zerolog.Nop(), graph.WithBaseURL(srv.URL))
	return newTestEnv(t, WithGraph(g), WithTenantID("tenant-1"))
}

func TestPersonByObjectID(t *testing.T) {
	env := newGraphEnv(t)

	p, err := env.adapter.PersonByObjectID(context.Background(), "aad-1")
	if err != nil {
		t.Fatalf("PersonByObjectID: %v", err)
	}
	if p.Name != "Ada Lovelace" || p.Email != "ada@example.com" {
		t.Errorf("person = %+v", p)
	}
}

func TestRoomByName(t *testing.T) {
	env := newGraphEnv(t)

	room, err := env.adapter.RoomByName(context.Background(), "Platform", "Engineering")
	if err != nil {
		t.Fatalf("RoomByName: %v", err)
	}
	if room.ID != "19:eng" || room.TenantID != "tenant-1" {
		t.Errorf("room = %+v", room)
	}

	_, err = env.adapter.RoomByName(context.Background(), "Nonexistent", "Engineering")
	if !errors.Is(err, models.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound, got %v", err)
	}

	_, err = env.adapter.RoomByName(context.Background(), "Platform", "Marketing")
	if !errors.Is(err, models.ErrChannelNotFound) {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestLookupsWithoutGraph(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.adapter.PersonByObjectID(context.Background(), "aad-1"); !errors.Is(err, ErrGraphDisabled) {
		t.Errorf("expected ErrGraphDisabled, got %v", err)
	}
	if _, err := env.adapter.RoomByName(context.Background(), "a", "b"); !errors.Is(err, ErrGraphDisabled) {
		t.Errorf("expected ErrGraphDisabled, got %v", err)
	}
}
