// Package kvtest holds a compliance suite shared by every kvstore backend.
package kvtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/kvstore"
)

type doc struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// Run exercises a backend through kvstore.Store. makeBackend must return a
// clean, isolated backend.
func Run(t *testing.T, makeBackend func(t *testing.T) kvstore.Backend) {
	t.Helper()

	b := makeBackend(t)
	s := kvstore.New(b, zerolog.Nop())
	ctx := context.Background()
	key := "kvtest-" + uuid.NewString()

	// Absent key yields default
	def := doc{Name: "default"}
	if got := kvstore.Get(ctx, s, key, def); got.Name != "default" {
		t.Fatalf("Get absent: got %+v", got)
	}

	// Round trip
	in := doc{Name: "contacts", Items: []string{"a@example.com", "+15550100"}}
	if err := s.Put(ctx, key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got := kvstore.Get(ctx, s, key, def)
	if got.Name != in.Name || len(got.Items) != 2 || got.Items[1] != "+15550100" {
		t.Fatalf("Get after Put: got %+v", got)
	}

	// Overwrite
	in.Items = in.Items[:1]
	if err := s.Put(ctx, key, in); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if got := kvstore.Get(ctx, s, key, def); len(got.Items) != 1 {
		t.Fatalf("overwrite not visible: %+v", got)
	}

	// Corrupt bytes are treated as absent
	corrupt := key + "-corrupt"
	if err := b.Write(ctx, corrupt, []byte("{not json")); err != nil {
		t.Fatalf("raw write: %v", err)
	}
	if got := kvstore.Get(ctx, s, corrupt, def); got.Name != "default" {
		t.Fatalf("corrupt value not treated as absent: %+v", got)
	}

	// Remove, then remove again as a no-op
	if err := s.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, key); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if _, ok, err := b.Read(ctx, key); err != nil || ok {
		t.Fatalf("Read after Remove: ok=%v err=%v", ok, err)
	}
	if err := s.Remove(ctx, corrupt); err != nil {
		t.Fatalf("Remove corrupt: %v", err)
	}
}
