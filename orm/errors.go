package orm

import "errors"

// ErrMissingWhere is returned by Delete when no condition narrows the rows.
var ErrMissingWhere = errors.New("orm: Delete without WHERE clause is not allowed")
