package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context, args []string) error
	Client(ctx context.Context, args []string) error
	Reminder(ctx context.Context, args []string) error
	Backup(ctx context.Context) error
	Restore(ctx context.Context) error
	Export(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
	Recover(ctx context.Context, args []string) error
	Clear(ctx context.Context) error
	Backups(ctx context.Context, args []string) error
	Status(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, status, exit"
	helpLoggedIn  = `Available commands:
  clients                              list clients
  client add [name=value ...]          add a client
  client edit <id> [name=value|-name]  change or remove fields
  client show <id>                     show a client and its reminders
  client rm <id>                       delete a client and its reminders
  reminders [client-id]                list reminders
  reminder add [client-id] [name=value ...]
  reminder sent <id>                   mark as sent
  reminder snooze <id> <24h|2024-06-01>
  reminder rm <id>
  backup | restore                     push to / pull from the cloud now
  backups [purge]                      list or delete cloud backups
  export <file> | import <file>        JSON backup file
  recover <file>                       reload an oversized dump from this device
  clear                                delete all local clients
  status | logout [forget] | exit`
)

// runREPL starts a simple read–eval–print loop for the ClientKeeper CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Commands other than register, login, status,
// help and exit need a signed-in user. The loop exits on EOF or when the
// user types "exit" or "quit".
//
// Errors returned by command handlers are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("ck %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if quit := dispatch(ctx, a, cmd, args); quit {
			return
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) (quit bool) {
	var err error
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn(helpLoggedIn)
		} else {
			printlnFn(helpLoggedOut)
		}
		return false
	case "register":
		err = a.Register(ctx)
	case "login":
		err = a.Login(ctx)
	case "status":
		err = a.Status(ctx)
	case "exit", "quit":
		printlnFn("Bye!")
		return true
	default:
		if !knownCommand(cmd) {
			printlnFn("Unknown command:", cmd)
			return false
		}
		if !a.isLoggedIn() {
			printlnFn("Please log in first")
			return false
		}
		err = dispatchLoggedIn(ctx, a, cmd, args)
	}
	if err != nil {
		printlnFn("Error:", err)
	}
	return false
}

func dispatchLoggedIn(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "clients":
		return a.Client(ctx, append([]string{"list"}, args...))
	case "client":
		return a.Client(ctx, args)
	case "reminders":
		return a.Reminder(ctx, append([]string{"list"}, args...))
	case "reminder":
		return a.Reminder(ctx, args)
	case "backup":
		return a.Backup(ctx)
	case "restore":
		return a.Restore(ctx)
	case "backups":
		return a.Backups(ctx, args)
	case "export":
		return a.Export(ctx, args)
	case "import":
		return a.Import(ctx, args)
	case "recover":
		return a.Recover(ctx, args)
	case "clear":
		return a.Clear(ctx)
	case "logout":
		return a.Logout(ctx, args)
	}
	return nil
}

func knownCommand(cmd string) bool {
	switch cmd {
	case "clients", "client", "reminders", "reminder", "backup", "restore",
		"backups", "export", "import", "recover", "clear", "logout":
		return true
	}
	return false
}
