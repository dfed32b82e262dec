package repository

import "github.com/creatory/creatory/internal/db"

// *db.DB is the PostgreSQL Store.
var _ Store = (*db.DB)(nil)
