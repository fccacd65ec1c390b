package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/client/models"
)

var errUsage = errors.New("wrong arguments, type 'help' for usage")

// Client runs a client subcommand: list, add, edit, show or rm.
func (a *App) Client(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list", "ls":
		list, err := a.clients.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.println("No clients yet")
		}
		for _, c := range list {
			a.println(clientLine(c))
		}
		return nil

	case "add":
		fields, err := a.fieldsFrom(args[1:])
		if err != nil {
			return err
		}
		c, err := a.clients.Create(ctx, fields)
		if err != nil {
			return err
		}
		a.printf("Client %s added\n", c.ID)
		return nil

	case "edit":
		if len(args) < 2 {
			return errUsage
		}
		set, unset := splitUnset(args[2:])
		fields, err := a.fieldsFrom(set)
		if err != nil {
			return err
		}
		if _, err := a.clients.Update(ctx, args[1], fields, unset); err != nil {
			return err
		}
		a.printf("Client %s updated\n", args[1])
		return nil

	case "show":
		if len(args) < 2 {
			return errUsage
		}
		c, err := a.clients.Get(ctx, args[1])
		if err != nil {
			return err
		}
		if err := a.printRecord(*c); err != nil {
			return err
		}
		rs, err := a.reminders.ListByClient(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, r := range rs {
			a.println("  " + reminderLine(r))
		}
		return nil

	case "rm", "delete":
		if len(args) < 2 {
			return errUsage
		}
		if err := a.clients.Delete(ctx, args[1]); err != nil {
			return err
		}
		a.printf("Client %s deleted\n", args[1])
		return nil
	}
	return errUsage
}

// Reminder runs a reminder subcommand: list, add, sent, snooze or rm.
func (a *App) Reminder(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list", "ls":
		var (
			list []models.Record
			err  error
		)
		if len(args) > 1 {
			list, err = a.reminders.ListByClient(ctx, args[1])
		} else {
			list, err = a.reminders.List(ctx)
		}
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.println("No reminders")
		}
		for _, r := range list {
			a.println(reminderLine(r))
		}
		return nil

	case "add":
		rest := args[1:]
		clientID := ""
		if len(rest) > 0 && !strings.Contains(rest[0], "=") {
			clientID, rest = rest[0], rest[1:]
		}
		fields, err := a.fieldsFrom(rest)
		if err != nil {
			return err
		}
		r, err := a.reminders.Create(ctx, clientID, fields)
		if err != nil {
			return err
		}
		a.printf("Reminder %s added\n", r.ID)
		return nil

	case "sent":
		if len(args) < 2 {
			return errUsage
		}
		if _, err := a.reminders.MarkSent(ctx, args[1]); err != nil {
			return err
		}
		a.printf("Reminder %s marked as sent\n", args[1])
		return nil

	case "snooze":
		if len(args) < 3 {
			return errUsage
		}
		until, err := parseUntil(args[2], time.Now())
		if err != nil {
			return err
		}
		if _, err := a.reminders.Snooze(ctx, args[1], until); err != nil {
			return err
		}
		a.printf("Reminder %s snoozed until %s\n", args[1], until.Format(time.DateOnly))
		return nil

	case "rm", "delete":
		if len(args) < 2 {
			return errUsage
		}
		if err := a.reminders.Delete(ctx, args[1]); err != nil {
			return err
		}
		a.printf("Reminder %s deleted\n", args[1])
		return nil
	}
	return errUsage
}

// fieldsFrom parses name=value arguments, prompting for them when none were
// given on the command line.
func (a *App) fieldsFrom(args []string) (map[string]json.RawMessage, error) {
	if len(args) == 0 {
		lines, err := GetFields(a.reader, a.out)
		if err != nil {
			return nil, err
		}
		args = lines
	}
	return models.FieldsFromString(args)
}

func (a *App) printRecord(r models.Record) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	a.println(string(b))
	return nil
}

// splitUnset separates "-name" arguments (fields to remove) from the rest.
func splitUnset(args []string) (set, unset []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") && !strings.Contains(arg, "=") {
			unset = append(unset, strings.TrimPrefix(arg, "-"))
			continue
		}
		set = append(set, arg)
	}
	return set, unset
}

// parseUntil accepts a Go duration ("48h") or a date ("2024-06-01").
func parseUntil(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot read %q as a duration or date", s)
}

func clientLine(c models.Record) string {
	parts := []string{c.ID, orDash(c.FirstString("name"))}
	if v := c.FirstString("phone"); v != "" {
		parts = append(parts, v)
	}
	if v := c.FirstString("email"); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "  ")
}

func reminderLine(r models.Record) string {
	parts := []string{
		r.ID,
		orDash(r.FirstString("title", "type")),
		"due " + orDash(r.FirstString("dueDate", "due_date", "reminderDate", "reminder_date")),
	}
	if v := r.FirstString("clientId", "client_id"); v != "" {
		parts = append(parts, "client "+v)
	}
	if v := r.FirstString("sentAt", "sent_at"); v != "" {
		parts = append(parts, "sent "+v)
	} else if v := r.FirstString("snoozedUntil", "snoozed_until"); v != "" {
		parts = append(parts, "snoozed until "+v)
	}
	return strings.Join(parts, "  ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
