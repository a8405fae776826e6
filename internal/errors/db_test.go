package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Error("mapped error should wrap pgx.ErrNoRows")
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "column name",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "member_records_email_key",
				ColumnName:     "email",
			},
			wantField: "email",
		},
		{
			name: "detail message",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (id)=(uid-ann) already exists.`,
			},
			wantField: "id",
		},
		{
			name: "primary key constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "client_records_pkey",
			},
			wantField: "id",
		},
		{
			name: "constraint on table with underscores",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "client_records_email_key",
			},
			wantField: "email",
		},
		{
			name: "expression index",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "member_records_lower_idx",
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Errorf("MapDBError() should be Conflict, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name:      "document is not an object",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "member_records_data_object"},
			wantField: "data",
		},
		{
			name:      "other check with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "email"},
			wantField: "email",
		},
		{
			name:      "not null with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "data"},
			wantField: "data",
		},
		{
			name:      "not null without column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation},
			wantField: "",
		},
		{
			name:      "invalid json",
			pgErr:     &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation},
			wantField: "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsValidation(err) {
				t.Errorf("MapDBError() should be Validation, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "connection exception", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}},
		{name: "too many connections", err: &pgconn.PgError{Code: pgerrcode.TooManyConnections}},
		{name: "dial failure", err: fmt.Errorf("ping: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := MapDBError(tt.err); !IsUnavailable(err) {
				t.Errorf("MapDBError() should be Unavailable, got %v", GetCode(err))
			}
		})
	}
}

func TestMapDBError_MissingTables(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "member_records" does not exist`})
	if !IsInternal(err) {
		t.Fatalf("MapDBError() should be Internal, got %v", GetCode(err))
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Message != "Profile tables are missing; run database migrations." {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.DivisionByZero})
	if !IsInternal(err) {
		t.Errorf("MapDBError() should be Internal, got %v", GetCode(err))
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	orig := errors.New("standard error")
	if err := MapDBError(orig); !errors.Is(err, orig) || GetCode(err) != "" {
		t.Errorf("MapDBError() should return the original error, got %v", err)
	}
}

func TestInferFieldFromConstraint(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		"member_records_email_key":   "email",
		"client_records_pkey":        "id",
		"records_name_unique":        "name",
		"member_records_upper_idx":   "",
		"member_records_data_object": "",
		"plain":                      "",
	}
	for name, want := range tests {
		if got := inferFieldFromConstraint(name); got != want {
			t.Errorf("inferFieldFromConstraint(%q) = %q, want %q", name, got, want)
		}
	}
}
