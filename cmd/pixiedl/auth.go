package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"pixiedl/pkg/secrets"
	"pixiedl/pkg/ui"
)

// authCmd groups the stored password commands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored gallery passwords",
	Long: `Manage gallery passwords stored for later runs.

Passwords are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - The PIXIEDL_GALLERY_PASSWORD environment variable (read only)

A stored password is used whenever --password is not given.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <gallery-url>",
	Short: "Store the password of a gallery",
	Example: `  pixiedl auth set https://studio.pixieset.com/smithwedding/`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

var authDeleteCmd = &cobra.Command{
	Use:     "delete <gallery-url>",
	Aliases: []string{"rm"},
	Short:   "Remove the stored password of a gallery",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthDelete,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List galleries with a stored password",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := secrets.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize password store: %w", err)
	}

	pw, err := promptPassword("Gallery password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	pw = strings.TrimSpace(pw)
	if pw == "" {
		return errors.New("password cannot be empty")
	}

	if err := manager.Store(args[0], pw); err != nil {
		return err
	}
	ui.Stdout().PrintSuccess(fmt.Sprintf("Password stored for %s", secrets.Key(args[0])))
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := secrets.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize password store: %w", err)
	}

	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.Stdout().PrintSuccess(fmt.Sprintf("Password removed for %s", secrets.Key(args[0])))
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := secrets.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize password store: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}

	console := ui.Stdout()
	if len(creds) == 0 {
		console.Println("No stored gallery passwords.")
		console.Println("Run 'pixiedl auth set <gallery-url>' to add one.")
		return nil
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].Gallery < creds[j].Gallery })
	for _, cred := range creds {
		console.Println(fmt.Sprintf("  %s  %s  (updated %s)",
			cred.Gallery, secrets.Mask(cred.Password), cred.LastModified.Format("2006-01-02 15:04")))
	}
	return nil
}
