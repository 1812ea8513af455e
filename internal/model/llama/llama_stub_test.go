//go:build !llama

package llama

import (
	"context"
	"testing"

	"llmsock/internal/model"
)

func TestStubLoadUnavailable(t *testing.T) {
	if Built {
		t.Fatal("stub must report Built=false")
	}
	_, err := Backend{}.Load(context.Background(), model.LoadRequest{})
	if !model.IsDependencyUnavailable(err) {
		t.Fatalf("want dependency unavailable, got %v", err)
	}
}
