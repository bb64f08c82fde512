package utils

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: ingredient_batches.lot_number")))
	assert.False(t, IsDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}))
}

func TestIsRetryableTxErr(t *testing.T) {
	assert.False(t, IsRetryableTxErr(nil))
	assert.True(t, IsRetryableTxErr(&mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.True(t, IsRetryableTxErr(fmt.Errorf("update: %w", &mysqlDriver.MySQLError{Number: 1205})))
	assert.True(t, IsRetryableTxErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsRetryableTxErr(&mysqlDriver.MySQLError{Number: 1062}))
	assert.False(t, IsRetryableTxErr(errors.New("InsufficientStock")))
}

func TestIsRecordNotFound(t *testing.T) {
	assert.True(t, IsRecordNotFound(gorm.ErrRecordNotFound))
	assert.True(t, IsRecordNotFound(fmt.Errorf("product 7: %w", ErrorRecordNotFound)))
	assert.False(t, IsRecordNotFound(errors.New("other")))
}
