package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sessionsCmd is the parent command for session management
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage backend sessions",
	Long: `Manage sessions stored on the backend.

Available subcommands:
  list   - List sessions, newest first
  new    - Create a session
  delete - Delete a session by id`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session",
	Args:  cobra.NoArgs,
	RunE:  runSessionsNew,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

// healthCmd checks that the backend is reachable
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	chat, closeLog, err := newChatService()
	if err != nil {
		return err
	}
	defer closeLog()

	registry := chat.Registry()
	if err := registry.Load(cmd.Context()); err != nil {
		return err
	}
	printSessionList(cmd.OutOrStdout(), registry.Sessions(), "")
	return nil
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := c.CreateSession(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.ID)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	chat, closeLog, err := newChatService()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := chat.Registry().DeleteSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	health, err := c.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: status %s, %d active session(s)\n",
		cfg.Backend.BaseURL, health.Status, health.SessionsActive)
	return nil
}
