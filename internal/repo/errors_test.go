package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslateError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "computers_mac_address_key"}

	if !errors.Is(translateError(dup), ErrAlreadyExists) {
		t.Error("unique violation must map to ErrAlreadyExists")
	}

	// Код доходит и через обёртки драйвера.
	wrapped := fmt.Errorf("exec: %w", dup)
	if !errors.Is(translateError(wrapped), ErrAlreadyExists) {
		t.Error("wrapped unique violation must map to ErrAlreadyExists")
	}

	other := &pgconn.PgError{Code: "23503"} // foreign_key_violation
	if errors.Is(translateError(other), ErrAlreadyExists) {
		t.Error("foreign key violation must not map to ErrAlreadyExists")
	}

	plain := errors.New("connection refused")
	if translateError(plain) != plain {
		t.Error("unrelated errors must pass through unchanged")
	}
}
