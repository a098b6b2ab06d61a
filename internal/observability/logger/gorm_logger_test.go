package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("SELECT * FROM subscription_carts WHERE id = $1"))
	assert.Equal(t, "UPDATE", operationFromSQL("update subscription_orders set status = $1"))
	assert.Equal(t, "INSERT", operationFromSQL("WITH ids AS (SELECT 1) INSERT INTO invoices VALUES (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestParamsFilterStripsBoundValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())

	sql, params := l.ParamsFilter(context.Background(), "SELECT * FROM payments WHERE transaction_id = $1", "TXN-9")
	assert.Equal(t, "SELECT * FROM payments WHERE transaction_id = $1", sql)
	assert.Nil(t, params)
}

func TestLogModeReturnsIndependentCopy(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())

	silenced := l.LogMode(gormlogger.Silent)
	assert.NotSame(t, l, silenced)
	assert.Equal(t, gormlogger.Warn, l.level)
}
