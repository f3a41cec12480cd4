package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintViolations(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		unique  bool
		foreign bool
	}{
		{name: "nil", err: nil},
		{name: "postgres unique", err: errors.New(`ERROR: duplicate key value violates unique constraint "orders_code_key" (SQLSTATE=23505)`), unique: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: orders.code"), unique: true},
		{name: "mysql unique", err: errors.New("Error 1062 (23000): Duplicate entry '12345' for key 'code'"), unique: true},
		{name: "postgres foreign key", err: errors.New(`ERROR: update or delete on table "products" violates foreign key constraint (SQLSTATE=23503)`), foreign: true},
		{name: "unrelated", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.foreign, IsForeignKeyViolation(tt.err))
		})
	}
}
