package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// navigator maps dispatcher navigation onto the command line. A location
// is the argument list of the running command, saved as JSON.
type navigator struct {
	app  *App
	once sync.Once
}

func (n *navigator) CurrentLocation() string {
	if len(n.app.args) == 0 || !resumable(n.app.args[0]) {
		return ""
	}
	b, err := json.Marshal(n.app.args)
	if err != nil {
		return ""
	}
	return string(b)
}

// NavigateToLogin prints the login hint. A single failure can redirect
// twice, once from the expiry signal and once from the dispatcher, so the
// hint is printed only once.
func (n *navigator) NavigateToLogin() {
	n.once.Do(func() {
		fmt.Fprintln(n.app.Err, "run `onesheet login` to sign in again; the interrupted command resumes afterwards")
	})
}

// resumable reports whether a command may be re-run after login.
func resumable(command string) bool {
	switch command {
	case "login", "logout", "calendar", "journal", "help", "completion":
		return false
	}
	return true
}

// decodeLocation turns a saved location back into arguments.
func decodeLocation(loc string) []string {
	var args []string
	if err := json.Unmarshal([]byte(loc), &args); err == nil {
		return args
	}
	return strings.Fields(loc)
}
