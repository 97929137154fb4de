package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"meridian/internal/auth"
)

var loginFlags struct {
	email string
	name  string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Record who is using the dashboard",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the logged-in user",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginFlags.email, "email", "", "Email address (required)")
	f.StringVar(&loginFlags.name, "name", "", "Display name (required)")

	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("name")
}

func sessionStore() (*auth.FileStore, error) {
	path := cfg.SessionFile
	if path == "" {
		var err error
		if path, err = auth.DefaultPath(); err != nil {
			return nil, fmt.Errorf("locate session file: %w", err)
		}
	}
	return auth.NewFileStore(path), nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	id, err := auth.NewIdentity(loginFlags.email, loginFlags.name)
	if err != nil {
		return err
	}
	store, err := sessionStore()
	if err != nil {
		return err
	}
	if err := store.Save(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", id.Name, id.Email)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	store, err := sessionStore()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	store, err := sessionStore()
	if err != nil {
		return err
	}
	id, err := store.Load()
	if errors.Is(err, auth.ErrNoSession) {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", id.Name, id.Email)
	return nil
}
