package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [identifier]",
		Short: "Authenticate with the Stratus platform",
		Long: `Authenticate with an email address or API key.

The secret is prompted without echo when stdin is a terminal, and read
as a single line otherwise (for scripted use: echo "$SECRET" | stratus login user@example.com).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the saved session",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	var identifier string
	if len(args) > 0 {
		identifier = args[0]
	} else {
		identifier, err = promptLine("Email or API key: ")
		if err != nil {
			return err
		}
	}

	if identifier == "" {
		return fmt.Errorf("an email address or API key is required")
	}

	secret, err := promptSecret("Secret: ")
	if err != nil {
		return err
	}

	logger.Debug("login starting", slog.String("identifier", identifier))

	sess, err := eng.Login(ctx, identifier, secret)
	if err != nil {
		return err
	}

	who := sess.Identity.Email
	if who == "" {
		who = identifier
	}

	statusf("Logged in as %s.\n", who)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Logout(); err != nil {
		return err
	}

	logger.Debug("session discarded")
	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	// Fast fail before the network round-trip.
	if _, ok := eng.Current(); !ok {
		return loginHint(session.ErrNotAuthenticated)
	}

	identity, err := eng.Identity(ctx)
	if err != nil {
		return loginHint(fmt.Errorf("fetching account identity: %w", err))
	}

	if flagJSON {
		return printWhoamiJSON(identity)
	}

	printWhoamiText(identity)

	return nil
}

func printWhoamiJSON(identity *api.Identity) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(whoamiOutput{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		APIKey:      identity.APIKey,
	})
}

func printWhoamiText(identity *api.Identity) {
	name := identity.DisplayName
	if name == "" {
		name = identity.Email
	}

	fmt.Printf("Account: %s (%s)\n", name, identity.Email)
	fmt.Printf("ID:      %s\n", identity.ID)

	if identity.APIKey != "" {
		fmt.Printf("API key: %s\n", identity.APIKey)
	}
}

// promptLine reads one line from stdin with a visible prompt.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// promptSecret reads a secret without echo when stdin is a terminal, and
// as a plain line otherwise so the command stays scriptable.
func promptSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return promptLine("")
	}

	fmt.Fprint(os.Stderr, prompt)

	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	return string(secretBytes), nil
}
