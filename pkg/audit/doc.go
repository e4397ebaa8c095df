// Package audit records the change history of the admin site.
//
// Every create, update and delete made through the admin site produces one
// Entry naming the acting staff member, the model, the object and a short
// change message. Entries are written to a Logger:
//
//   - DBLogger stores them in the admin_log_entries table and answers
//     history queries
//   - FileLogger appends JSON lines to a rotating file
//   - MultiLogger fans out to several loggers
//
// # Usage
//
//	dbLog, err := audit.NewDBLogger(db)
//	if err != nil {
//		return err
//	}
//	handlers := admin.NewHandlers(site).WithAuditLog(dbLog)
//
// Reading the history of one object:
//
//	entries, err := dbLog.History(ctx, audit.Filter{Model: "planlist", ObjectID: "3"})
package audit
