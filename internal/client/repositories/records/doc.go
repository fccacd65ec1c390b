// Package records persists client and reminder documents in the local
// SQLite store.
//
// Each row keeps the full JSON document in the data column. A few fields
// are copied into plain columns (see Collection) so reminders can be looked
// up by client or ordered by due date without decoding every document.
//
// The repository works over dbx.DBTX, so the same code runs against *sql.DB
// or inside a transaction opened with dbx.WithTx.
//
//	clients := records.NewSQLiteRepository(db, records.Clients)
//	_ = clients.Upsert(ctx, rec)
//	all, _ := clients.GetAll(ctx)
//
//	reminders := records.NewSQLiteRepository(db, records.Reminders)
//	forClient, _ := reminders.FindBy(ctx, "client_id", rec.ID)
package records
