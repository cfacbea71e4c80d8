package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/dispatch"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *App) loginCmd() *cobra.Command {
	var email string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to ONES with email and password",
		Long: `Sign in to ONES and keep the session in the config directory.

If a command was interrupted because the session expired, it runs again
once the login succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAPI(); err != nil {
				return err
			}
			if email == "" {
				v, err := a.prompt("Email: ")
				if err != nil {
					return err
				}
				email = v
			}
			password, err := a.readPassword(passwordStdin)
			if err != nil {
				return err
			}

			rec, err := a.auth.Login(cmd.Context(), email, password)
			if err != nil {
				// Login failures read as the server put them, not as an
				// expired session.
				e := a.dispatcher.HandleWith(err, dispatch.Options{Log: true})
				fmt.Fprintf(a.Err, "%s: %s\n", dispatch.LevelError, e.Message())
				return errReported
			}
			fmt.Fprintf(a.Err, "Logged in as %s <%s>\n", rec.User.Name, rec.User.Email)
			return a.afterLogin(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

// afterLogin re-runs the command saved before the session expired, or
// shows the logged-in user.
func (a *App) afterLogin(ctx context.Context) error {
	args := []string{"whoami"}
	if loc := a.auth.CompleteLogin(); loc != "" {
		if saved := decodeLocation(loc); len(saved) > 0 && resumable(saved[0]) {
			args = saved
			fmt.Fprintf(a.Err, "Resuming: onesheet %s\n", strings.Join(args, " "))
		}
	}
	a.args = args
	root := a.newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.Err, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("could not read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, and a plain line
// otherwise.
func (a *App) readPassword(fromStdin bool) (string, error) {
	if f, ok := a.In.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.Err, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Err)
		if err != nil {
			return "", fmt.Errorf("could not read password: %w", err)
		}
		return string(b), nil
	}
	if fromStdin {
		line, err := a.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("could not read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	return a.prompt("Password: ")
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored ONES session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.auth.IsAuthenticated() {
				fmt.Fprintln(a.Err, "Not logged in.")
				return nil
			}
			a.auth.Logout()
			fmt.Fprintln(a.Err, "Logged out.")
			return nil
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := a.auth.CurrentUser()
			if u == nil {
				return apperr.NewBusiness("not logged in, run `onesheet login` first")
			}
			return a.render(u, func(w io.Writer) {
				row(w, "NAME", "EMAIL", "ID")
				row(w, u.Name, u.Email, u.UUID)
			})
		},
	}
}

// userLabel is how a user shows up in tables.
func userLabel(u *model.User) string {
	if u == nil {
		return "-"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.UUID
}
