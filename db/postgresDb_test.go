package db_test

import (
	"os"
	"reflect"
	"testing"

	"bucketset/db"
)

// Runs only against a real server, e.g.
// BUCKETSET_TEST_DSN="postgres://localhost/bucketset_test?sslmode=disable" go test ./db
func createPostgresStore(t *testing.T) db.Store {
	t.Helper()

	dsn := os.Getenv("BUCKETSET_TEST_DSN")
	if dsn == "" {
		t.Skip("BUCKETSET_TEST_DSN not set")
	}

	store, closeFunc, err := db.NewPostgresStore(dsn, "entries_test")
	if err != nil {
		t.Fatalf("Could not create a postgres store: %v", err)
	}
	t.Cleanup(func() { closeFunc() })

	if err := store.DeleteAll(); err != nil {
		t.Fatalf("Could not reset the test table: %v", err)
	}

	return store
}

func TestPostgresStore(t *testing.T) {
	store := createPostgresStore(t)

	addMembers(t, store, "roles", "admin", "read", "write")
	addMembers(t, store, "roles", "admin", "write", "exec")
	addMembers(t, store, "roles", "guest", "list")

	got := fetchSorted(t, store, "roles", "admin")
	want := []string{"exec", "read", "write"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected members: got %v, want %v", got, want)
	}

	sets, err := store.FetchSets("roles", []string{"admin", "guest", "missing"})
	if err != nil {
		t.Fatalf("FetchSets failed: %v", err)
	}
	if len(sets) != 3 || len(sets[0]) != 3 || len(sets[1]) != 1 || len(sets[2]) != 0 {
		t.Errorf("Unexpected sets: %v", sets)
	}

	if err := store.RemoveMembers("roles", "admin", []string{"write", "ghost"}); err != nil {
		t.Fatalf("RemoveMembers failed: %v", err)
	}
	if got := fetchSorted(t, store, "roles", "admin"); !reflect.DeepEqual(got, []string{"exec", "read"}) {
		t.Errorf("Unexpected members after removal: %v", got)
	}

	if err := store.DeleteKeys("roles", []string{"admin"}); err != nil {
		t.Fatalf("DeleteKeys failed: %v", err)
	}
	if got := fetchSorted(t, store, "roles", "admin"); len(got) != 0 {
		t.Errorf("Deleted key still has members: %v", got)
	}

	if err := store.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if got := fetchSorted(t, store, "roles", "guest"); len(got) != 0 {
		t.Errorf("DeleteAll left members behind: %v", got)
	}
}

func TestPostgresRejectsBadCollection(t *testing.T) {
	if _, _, err := db.NewPostgresStore("postgres://localhost/x", `entries"; DROP TABLE x`); err == nil {
		t.Fatal("NewPostgresStore with an invalid collection: got nil error, want non-nil")
	}
}
