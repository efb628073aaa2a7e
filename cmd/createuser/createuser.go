// Package createuser implements the command that adds an account from the
// command line.
package createuser

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

// passwordEnv is read when --password is not given.
const passwordEnv = "ONCODERMA_PASSWORD"

// Command creates the createuser command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		password  string
		firstName string
		lastName  string
		email     string
	)

	cmd := &cobra.Command{
		Use:   "createuser <username>",
		Short: "Create a user account",
		Long:  "Create a user account. The password is taken from --password or the " + passwordEnv + " environment variable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.NewValidationError("username is required")
			}
			if password == "" {
				password = os.Getenv(passwordEnv)
			}

			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}

			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user := &datastore.User{
				Username:     username,
				PasswordHash: hash,
				FirstName:    firstName,
				LastName:     lastName,
				Email:        email,
			}
			if err := store.CreateUser(cmd.Context(), user); err != nil {
				if errors.Is(err, datastore.ErrUsernameTaken) {
					return fmt.Errorf("user %q already exists", username)
				}
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", user.Username, user.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password for the new account")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")

	return cmd
}
