package citizen_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sahan/go-idp/internal/citizen"
)

func newTestStore(t *testing.T) *citizen.Store {
	t.Helper()

	store, err := citizen.Open(t.Name()+".db", true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	record := citizen.Citizen{
		ID:          "199012345678",
		FirstName:   "Nimal",
		LastName:    "Perera",
		Email:       "nimal@example.lk",
		PhoneNumber: "+94771234567",
		Verified:    true,
		Address:     "12 Galle Road, Colombo",
		BirthDate:   "1990-04-12",
		Country:     "Sri Lanka",
		Nationality: "Sri Lankan",
		Locale:      "si-LK",
		Zoneinfo:    "Asia/Colombo",
		LastLoginAt: time.Now().Add(-time.Hour).UTC(),
		CreatedAt:   time.Now().Add(-24 * time.Hour).UTC(),
	}

	if err := store.Create(ctx, record); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.FirstName != "Nimal" || got.LastName != "Perera" {
		t.Errorf("unexpected name: %q %q", got.FirstName, got.LastName)
	}
	if got.FullName() != "Nimal Perera" {
		t.Errorf("unexpected full name: %q", got.FullName())
	}
	if !got.Verified {
		t.Error("verified flag lost")
	}
	if got.BirthDate != "1990-04-12" {
		t.Errorf("unexpected birth date: %q", got.BirthDate)
	}
	if got.LastLoginAt.IsZero() {
		t.Error("last login lost")
	}
}

func TestStoreGetUnknown(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if _, err := store.GetByID(context.Background(), "000000000000"); !errors.Is(err, citizen.ErrCitizenNotFound) {
		t.Errorf("expected ErrCitizenNotFound, got %v", err)
	}
}

func TestOpenInMemoryLeavesNoFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := citizen.Open("ephemeral.db", true)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, citizen.Citizen{ID: "199012345678"}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat("ephemeral.db"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("in-memory store touched the filesystem: stat returned %v", err)
	}
}

func TestFullNameSingleParts(t *testing.T) {
	t.Parallel()

	if got := (citizen.Citizen{FirstName: "Nimal"}).FullName(); got != "Nimal" {
		t.Errorf("unexpected full name: %q", got)
	}
	if got := (citizen.Citizen{LastName: "Perera"}).FullName(); got != "Perera" {
		t.Errorf("unexpected full name: %q", got)
	}
}
