package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parkwatch/console/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(false)
		if err != nil {
			return err
		}
		defer b.log.Sync() //nolint:errcheck

		in := bufio.NewReader(os.Stdin)
		user := strings.TrimSpace(loginUser)
		if user == "" {
			fmt.Fprint(os.Stderr, "Username: ")
			if user, err = readLine(in); err != nil {
				return fmt.Errorf("reading username: %w", err)
			}
		}
		pass, err := readPassword(in)
		if err != nil {
			return err
		}

		id, err := b.session.Login(cmd.Context(), user, pass)
		if errors.Is(err, session.ErrAuthentication) {
			return errors.New("invalid username or password")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", id.DisplayName(), id.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(false)
		if err != nil {
			return err
		}
		defer b.log.Sync() //nolint:errcheck

		b.session.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in operator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(false)
		if err != nil {
			return err
		}
		defer b.log.Sync() //nolint:errcheck

		id, err := b.session.Restore(cmd.Context())
		if errors.Is(err, session.ErrNoCredential) {
			return errors.New("not signed in (run: parkwatch login)")
		}
		if err != nil {
			return fmt.Errorf("stored credential rejected: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", id.DisplayName())
		fmt.Fprintf(out, "  username: %s\n", id.Username)
		fmt.Fprintf(out, "  role:     %s\n", id.Role)
		if id.Email != "" {
			fmt.Fprintf(out, "  email:    %s\n", id.Email)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", os.Getenv("PARKWATCH_USERNAME"), "operator username")
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise, so the password can be piped in.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		pass, err := readLine(in)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return pass, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
