package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mergestat/timediff"
	"github.com/receiptdesk/receiptdesk/internal/api/models"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/password"
	"github.com/spf13/cobra"
)

var usersCreateFlags struct {
	Password string
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all non-admin users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		users, err := db.ListUsers(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tCREATED")
		for _, u := range users {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, timediff.TimeDiff(u.CreatedAt))
		}
		return tw.Flush()
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.CreateUserRequest{Username: args[0], Password: usersCreateFlags.Password}
		req.Normalize()
		if err := models.Validate(&req); err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) && len(appErr.Details) > 0 {
				return errors.New(strings.Join(appErr.Details, "; "))
			}
			return err
		}
		username := req.Username

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		hash, err := password.Hash(req.Password)
		if err != nil {
			return err
		}
		user, err := db.CreateUser(cmd.Context(), username, hash, database.RoleUser)
		if err != nil {
			if errors.Is(err, database.ErrUsernameTaken) {
				return fmt.Errorf("username %q already exists", username)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Printf("Created user %s with ID %d\n", user.Username, user.ID)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a non-admin user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 0)
		if err != nil {
			return fmt.Errorf("invalid user ID %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		deleted, err := db.DeleteUser(cmd.Context(), uint(id))
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if !deleted {
			return fmt.Errorf("user %d not found or cannot be deleted", id)
		}

		fmt.Printf("Deleted user %d\n", id)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVarP(&usersCreateFlags.Password, "password", "p", "", "Password of the new user (6-100 characters)")
	_ = usersCreateCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersListCmd, usersCreateCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}
