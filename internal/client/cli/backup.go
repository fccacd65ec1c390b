package cli

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/common"
)

// Backup pushes local data to the cloud right away.
func (a *App) Backup(ctx context.Context) error {
	a.backup.BackupNow(ctx)
	return nil
}

// Restore replaces local data with the newest cloud snapshot.
func (a *App) Restore(ctx context.Context) error {
	if !Confirm(a.reader, "Replace local data with the latest cloud backup?", a.out) {
		a.println("Cancelled")
		return nil
	}
	a.backup.RestoreNow(ctx)
	return nil
}

func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.backup.ExportFile(ctx, args[0]); err != nil {
		return err
	}
	a.printf("Exported to %s\n", args[0])
	return nil
}

func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if !Confirm(a.reader, "Replace local clients with the contents of "+args[0]+"?", a.out) {
		a.println("Cancelled")
		return nil
	}
	res, err := a.backup.ImportFile(ctx, args[0])
	if err != nil {
		return err
	}
	if res.RemindersReplaced {
		a.printf("Imported %d clients and %d reminders\n", res.Clients, res.Reminders)
	} else {
		a.printf("Imported %d clients, reminders kept\n", res.Clients)
	}
	return nil
}

// Recover reloads a dump exported on this device, trimming collections
// that grew past the import limits.
func (a *App) Recover(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if !Confirm(a.reader, "Replace local data with the dump in "+args[0]+"?", a.out) {
		a.println("Cancelled")
		return nil
	}
	res, err := a.backup.RecoverFile(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("Recovered %d clients and %d reminders\n", res.Clients, res.Reminders)
	return nil
}

// Clear wipes local clients. Cloud backups stay.
func (a *App) Clear(ctx context.Context) error {
	if !Confirm(a.reader, "Delete all local clients? Cloud backups are kept.", a.out) {
		a.println("Cancelled")
		return nil
	}
	if err := a.backup.ClearAll(ctx); err != nil {
		return err
	}
	a.println("Local clients deleted")
	return nil
}

// Backups lists cloud snapshots; "backups purge" deletes all of them.
func (a *App) Backups(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if args[0] != "purge" {
			return errUsage
		}
		if !Confirm(a.reader, "Delete every cloud backup?", a.out) {
			a.println("Cancelled")
			return nil
		}
		n, err := a.backup.DeleteAllBackups(ctx)
		if err != nil {
			return err
		}
		a.printf("Deleted %d cloud backups\n", n)
		return nil
	}

	list, err := a.backup.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.println("No cloud backups")
	}
	for _, s := range list {
		a.printf("%s  %s  %d clients  %d reminders\n", s.ID, common.FormatTimestamp(s.CreatedAt), s.ClientsCount, s.RemindersCount)
	}
	return nil
}

// Status prints session, connectivity and sync state.
func (a *App) Status(ctx context.Context) error {
	if id, ok := a.sessions.Current(); ok {
		a.printf("User:        %s\n", id.Username)
	} else {
		a.println("User:        not logged in")
	}
	online := "offline"
	if a.watcher.Online() {
		online = "online"
	}
	a.printf("Server:      %s (%s)\n", a.config.ServerEndpointAddr, online)

	st := a.engine.Status(ctx)
	a.printf("Sync:        %s\n", st.State)
	a.printf("Pending:     %t\n", st.Pending)
	a.printf("Last push:   %s\n", formatWhen(st.LastPush))
	a.printf("Last pull:   %s\n", formatWhen(st.LastPull))
	if st.LastError != "" {
		a.printf("Last error:  %s\n", st.LastError)
	}

	if settings, err := a.local.GetSettings(ctx); err == nil && settings.LastBackupDate != "" {
		a.printf("Last backup: %s\n", settings.LastBackupDate)
	}
	return nil
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return common.FormatTimestamp(t)
}
