package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))

	ts, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ts != nil {
		t.Errorf("Load() = %+v, want nil", ts)
	}
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ts, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ts != nil {
		t.Errorf("Load() = %+v, want nil", ts)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileStore(path)
	ctx := context.Background()

	want := &TokenSet{
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		RealmID:      "9991",
		Scope:        "com.intuit.quickbooks.accounting",
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		IssuedAt:     time.Date(2026, 1, 2, 2, 4, 5, 0, time.UTC),
		Version:      3,
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !sameTokenSet(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	ctx := context.Background()

	if err := store.Save(ctx, &TokenSet{AccessToken: "AT1", RefreshToken: "RT1", RealmID: "1", Version: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, &TokenSet{AccessToken: "AT2", RealmID: "1", Version: 2}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "AT2" || got.RefreshToken != "" || got.Version != 2 {
		t.Errorf("Load() = %+v, want second record only", got)
	}
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewFileStore(path)

	const goroutines = 10
	var wg sync.WaitGroup

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			ts := &TokenSet{
				AccessToken:  fmt.Sprintf("access-%d", id),
				RefreshToken: fmt.Sprintf("refresh-%d", id),
				RealmID:      "9991",
				Version:      int64(id),
			}
			if err := store.Save(context.Background(), ts); err != nil {
				t.Errorf("goroutine %d: Save() error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read token file: %v", err)
	}
	var ts TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		t.Fatalf("token file is not valid JSON after concurrent writes: %v", err)
	}
	if want := fmt.Sprintf("access-%d", ts.Version); ts.AccessToken != want {
		t.Errorf("AccessToken = %q, want %q (torn record)", ts.AccessToken, want)
	}
}

func TestFileStore_SaveNil(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) error = nil")
	}
}

func sameTokenSet(a, b *TokenSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.RealmID == b.RealmID &&
		a.Scope == b.Scope &&
		a.TokenType == b.TokenType &&
		a.ExpiresAt.Equal(b.ExpiresAt) &&
		a.IssuedAt.Equal(b.IssuedAt) &&
		a.Version == b.Version
}
