// Package common contains shared constants, sentinel errors and small helpers
// used across ClientKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// TimestampLayout is the ISO-8601 layout used for record and payload timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Durable device-scoped sync flags stored in the local metadata table.
const (
	MetaSyncPending       = "sync_pending"
	MetaLastRestoredOwner = "last_restored_owner"
)
