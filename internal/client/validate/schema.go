package validate

import "regexp"

const (
	MaxFileSize  = 10 << 20
	MaxClients   = 10000
	MaxReminders = 50000

	maxExportedAt = 50
)

// field is a known string-valued field. A field may be absent or null.
type field struct {
	name  string
	max   int
	must  bool
	email bool
}

var clientFields = []field{
	{name: "id", max: 100, must: true},
	{name: "name", max: 200},
	{name: "email", max: 255, email: true},
	{name: "phone", max: 50},
	{name: "notes", max: 10000},
	{name: "address", max: 500},
	{name: "company", max: 200},
	{name: "propertyAddress", max: 500},
	{name: "birthday", max: 50},
	{name: "anniversary", max: 50},
	{name: "purchaseDate", max: 50},
	{name: "source", max: 100},
	{name: "createdAt", max: 50},
	{name: "updatedAt", max: 50},
}

// Reminders arrive in both camelCase and snake_case; both spellings are
// accepted and both are preserved.
var reminderFields = []field{
	{name: "id", max: 100, must: true},
	{name: "type", max: 50},
	{name: "title", max: 200},
	{name: "message", max: 5000},
	{name: "clientId", max: 100},
	{name: "client_id", max: 100},
	{name: "dueDate", max: 50},
	{name: "due_date", max: 50},
	{name: "reminderDate", max: 50},
	{name: "reminder_date", max: 50},
	{name: "sentAt", max: 50},
	{name: "sent_at", max: 50},
	{name: "snoozedUntil", max: 50},
	{name: "snoozed_until", max: 50},
	{name: "createdAt", max: 50},
	{name: "created_at", max: 50},
	{name: "updatedAt", max: 50},
	{name: "updated_at", max: 50},
}

var settingsFields = []field{
	{name: "lastBackupDate", max: 50},
	{name: "theme", max: 20},
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
