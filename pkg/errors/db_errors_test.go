package errors

import (
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// Test classification of GORM record-not-found.
func TestClassifyDBError_NotFound(t *testing.T) {
	dbErr := ClassifyDBError(gorm.ErrRecordNotFound)
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.True(t, IsNotFound(dbErr))
}

// Test classification of MySQL error codes.
func TestClassifyDBError_MySQLCodes(t *testing.T) {
	cases := map[uint16]DatabaseErrorType{
		1062: ErrorTypeDuplicateKey,
		1406: ErrorTypeDataTooLong,
		1213: ErrorTypeDeadlock,
		9999: ErrorTypeUnknown,
	}

	for code, want := range cases {
		err := &mysql.MySQLError{Number: code, Message: "boom"}
		dbErr := ClassifyDBError(fmt.Errorf("create message: %w", err))
		assert.Equal(t, want, dbErr.Type, "code %d", code)
		assert.Equal(t, code, dbErr.MySQLErrCode)
	}
}

// Test classification of connection-level failures.
func TestClassifyDBError_Connection(t *testing.T) {
	dbErr := ClassifyDBError(fmt.Errorf("dial tcp 127.0.0.1:3306: connection refused"))
	assert.Equal(t, ErrorTypeConnectionError, dbErr.Type)
}

// Test nil passthrough.
func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
}
