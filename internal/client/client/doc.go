// Package client is the device's view of the remote backup store.
//
// # Overview
//
// The package provides:
//  1. The BackupStore contract used by the sync engine: insert, fetch-latest,
//     list, delete and an insert change feed, all scoped to one owner.
//  2. The Auth contract used at login: Register/GetSalt/Login and Ping.
//  3. GRPCClient, which implements both over the BackupService gRPC API,
//     injects the access token, refreshes it transparently when it expires
//     and maps gRPC status codes to the sentinel errors below.
//  4. MemoryStore, an in-process BackupStore with a change feed, used when
//     several devices must share one store inside a single process.
//
// # Error Handling
//
// Callers match with errors.Is: ErrNotFound (owner has no snapshot),
// ErrUnavailable (network), ErrUnauthorized. Anything else is wrapped as
// "rpc error: ...".
package client
