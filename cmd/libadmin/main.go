// libadmin is the operator CLI: schema migration, bootstrap of the first
// administrator account, and bulk catalog import.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"libris-backend/internal/catalog"
	"libris-backend/internal/platform/auth"
	"libris-backend/internal/platform/db"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "libadmin",
		Short:         "Administrative tooling for the libris backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the config file")

	root.AddCommand(migrateCmd(), createAdminCmd(), importBooksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func connect() (*sqlx.DB, error) {
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return db.Connect(cfg.DB)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.EnsureSchema(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Println("schema is up to date")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || email == "" {
				return fmt.Errorf("--name and --email are required")
			}
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			conn, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			svc := auth.NewService(auth.NewStore(conn), auth.JWTSecret())
			identity, err := svc.Register(cmd.Context(), name, email, password, auth.RoleAdministrator)
			if err != nil {
				return err
			}
			fmt.Printf("created administrator %s (user_id=%d)\n", identity.Email, identity.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	return cmd
}

type bookImport struct {
	ISBN          string   `json:"isbn"`
	Title         string   `json:"title"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedYear *int     `json:"published_year,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Copies        int      `json:"copies,omitempty"`
}

func importBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-books <file.json>",
		Short: "Bulk-load books (and copies) from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var entries []bookImport
			if err := json.NewDecoder(bufio.NewReader(f)).Decode(&entries); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			conn, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			svc := catalog.NewService(catalog.NewStore(conn))
			return importBooks(cmd.Context(), svc, entries)
		},
	}
}

func importBooks(ctx context.Context, svc *catalog.Service, entries []bookImport) error {
	imported, skipped := 0, 0
	for _, e := range entries {
		book, err := svc.CreateBook(ctx, catalog.CreateBookRequest{
			ISBN:          e.ISBN,
			Title:         e.Title,
			Publisher:     e.Publisher,
			PublishedYear: e.PublishedYear,
			Description:   e.Description,
			Authors:       e.Authors,
			Categories:    e.Categories,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %q: %v\n", e.Title, err)
			skipped++
			continue
		}
		for i := 0; i < e.Copies; i++ {
			if _, err := svc.AddCopy(ctx, book.BookID); err != nil {
				return fmt.Errorf("add copy for %q: %w", e.Title, err)
			}
		}
		imported++
	}
	fmt.Printf("imported %d books, skipped %d\n", imported, skipped)
	if skipped > 0 {
		return fmt.Errorf("%d entries were skipped", skipped)
	}
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
