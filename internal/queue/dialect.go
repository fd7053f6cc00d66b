package queue

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	sqliteBusyCode      = 5
	mysqlDeadlockCode   = 1213
	mysqlLockWaitCode   = 1205
	migrationDirSQLite  = "migrations/sqlite"
	migrationDirMySQL   = "migrations/mysql"
	versionColumnSQLite = "version TEXT PRIMARY KEY"
	versionColumnMySQL  = "version VARCHAR(64) PRIMARY KEY"
)

// dialect holds the SQL differences between the supported backends.
type dialect struct {
	name string
	// claimLock is appended to the claim and requeue selects. MySQL skips rows
	// already locked by a concurrent claimer; SQLite serializes writers through
	// BEGIN IMMEDIATE instead.
	claimLock string
	// rowLock is appended to single-row reads inside write transactions.
	rowLock       string
	migrationDir  string
	versionColumn string
	insertIgnore  string
	columnsQuery  string
	retryable     func(error) bool
}

var sqliteDialect = dialect{
	name:          "sqlite",
	migrationDir:  migrationDirSQLite,
	versionColumn: versionColumnSQLite,
	insertIgnore:  "INSERT OR IGNORE",
	columnsQuery:  "SELECT name FROM pragma_table_info('" + tableName + "')",
	retryable:     isSQLiteBusy,
}

var mysqlDialect = dialect{
	name:          "mysql",
	claimLock:     " FOR UPDATE SKIP LOCKED",
	rowLock:       " FOR UPDATE",
	migrationDir:  migrationDirMySQL,
	versionColumn: versionColumnMySQL,
	insertIgnore:  "INSERT IGNORE",
	columnsQuery: "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = DATABASE() AND table_name = '" + tableName + "' ORDER BY ordinal_position",
	retryable: isMySQLRetryable,
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isMySQLRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlDeadlockCode || myErr.Number == mysqlLockWaitCode
}
