// Package testdb opens the PostgreSQL database used by integration tests.
//
// Tests that need a database call Open, which skips the test when
// DATABASE_URL is unset and otherwise returns a migrated connection:
//
//	db := testdb.Open(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	    docs := postgres.NewPostgresDocumentStore(db, logger).WithTx(tx)
//	    // ...
//	})
//
// WithTx always rolls back, so tests using it leave no rows behind.
package testdb
