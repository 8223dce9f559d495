package router

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/config"
)

type fakeLast struct {
	name string
	ok   bool
	err  error
}

func (f fakeLast) LastBackend(context.Context, uuid.UUID) (string, bool, error) {
	return f.name, f.ok, f.err
}

func backends() config.BackendsConfig {
	return config.Default().Backends
}

func TestRoute(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		last LastUsed
		want string
	}{
		{"no store", nil, "primary"},
		{"unknown identity", fakeLast{}, "primary"},
		{"last used", fakeLast{name: "secondary", ok: true}, "secondary"},
		{"removed backend", fakeLast{name: "gone", ok: true}, "primary"},
		{"store error", fakeLast{err: errors.New("redis down")}, "primary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(backends(), tt.last)
			if got := r.Route(context.Background(), id).Name; got != tt.want {
				t.Errorf("Route() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOther(t *testing.T) {
	r := NewRouter(backends(), nil)

	other, err := r.Other("primary")
	if err != nil || other.Name != "secondary" {
		t.Errorf("Other(primary) = %v, %v", other.Name, err)
	}
	other, err = r.Other("secondary")
	if err != nil || other.Name != "primary" {
		t.Errorf("Other(secondary) = %v, %v", other.Name, err)
	}
	if _, err := r.Other("nope"); err == nil {
		t.Error("Expected an error for an unknown backend")
	}
}

func TestUpdate(t *testing.T) {
	r := NewRouter(backends(), nil)
	cfg := backends()
	cfg.Default = "secondary"
	r.Update(cfg)
	if r.Default().Name != "secondary" {
		t.Errorf("Expected default=secondary, got %s", r.Default().Name)
	}
	if len(r.All()) != 2 {
		t.Errorf("Expected 2 backends, got %d", len(r.All()))
	}
}

func TestSetDiscovered(t *testing.T) {
	r := NewRouter(backends(), nil)

	if !r.SetDiscovered(map[string]string{"secondary": "10.0.0.7:25565"}) {
		t.Fatal("Expected the first discovery to change the router")
	}
	if r.SetDiscovered(map[string]string{"secondary": "10.0.0.7:25565"}) {
		t.Error("Expected an identical discovery to be a no-op")
	}

	be, ok := r.Lookup("secondary")
	if !ok || be.Addr != "10.0.0.7:25565" {
		t.Errorf("Lookup(secondary).Addr = %s", be.Addr)
	}
	if got := r.Default().Addr; got != "localhost:25566" {
		t.Errorf("Primary should keep its configured address, got %s", got)
	}
	other, _ := r.Other("primary")
	if other.Addr != "10.0.0.7:25565" {
		t.Errorf("Other(primary).Addr = %s", other.Addr)
	}

	// discovered addresses survive a hot reload
	r.Update(backends())
	if be, _ := r.Lookup("secondary"); be.Addr != "10.0.0.7:25565" {
		t.Errorf("Expected discovered address after Update, got %s", be.Addr)
	}
}
