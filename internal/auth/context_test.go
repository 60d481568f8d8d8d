// ABOUTME: Tests for AuthContext propagation and store id binding
// ABOUTME: Covers WithAuth/FromContext and ResolveStoreID in both gate modes

package auth

import (
	"context"
	"errors"
	"testing"
)

func TestResolveStoreID(t *testing.T) {
	tests := []struct {
		name      string
		ac        AuthContext
		requested string
		want      string
		wantErr   error
	}{
		{"omitted uses token subject", AuthContext{StoreID: "wallet-1"}, "", "wallet-1", nil},
		{"matching repeat", AuthContext{StoreID: "wallet-1"}, "wallet-1", "wallet-1", nil},
		{"mismatch rejected", AuthContext{StoreID: "wallet-1"}, "wallet-2", "", ErrUnauthorized},
		{"self-hosted takes body", AuthContext{SelfHosted: true}, "any-store", "any-store", nil},
		{"self-hosted empty stays empty", AuthContext{SelfHosted: true}, "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ac.ResolveStoreID(tt.requested)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveStoreID() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveStoreID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContext_Present(t *testing.T) {
	expected := &AuthContext{StoreID: "wallet-1"}

	ctx := WithAuth(context.Background(), expected)
	got := FromContext(ctx)

	if got == nil {
		t.Fatal("FromContext() = nil, want non-nil")
	}
	if got.StoreID != expected.StoreID {
		t.Errorf("StoreID = %q, want %q", got.StoreID, expected.StoreID)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestMustFromContext_Present(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{SelfHosted: true})

	// Should not panic
	got := MustFromContext(ctx)
	if !got.SelfHosted {
		t.Error("SelfHosted = false, want true")
	}
}

func TestMustFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext() did not panic when auth context missing")
		}
	}()

	MustFromContext(context.Background())
}
