package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateKey = 1062
	mysqlErrFKConstraint = 1452
)

func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateKey
}

func IsForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrFKConstraint
}
