// Package cli provides the interactive ClientKeeper command-line client.
//
// It wires configuration, the local store, the backup server client, the
// sync engine and the connectivity watcher behind a small REPL. Typical
// flow: prompt for credentials, start the connectivity watcher, then run
// user commands until exit.
//
// Key features:
//   - Register / Login (online with offline fallback) / Logout
//   - Clients and reminders: add, edit, list, show, delete
//   - Cloud backup and restore on demand, automatic sync in the background
//   - Export to and import from a JSON file, clear local data
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
