package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/spf13/cobra"
)

var (
	linkEmail        string
	linkName         string
	linkAccessToken  string
	linkRefreshToken string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link a Fitbit account",
	Long: `Store a user's Fitbit OAuth tokens. Every link creates a new user instance
for the email; the most recent instance is the current one and earlier
instances keep their history.

EXAMPLES:

  fitbit-alerts link --email ana@example.com --name Ana \
    --access-token "$ACCESS" --refresh-token "$REFRESH"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := newAlertService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		user, err := linkUser(ctx, svc.Store, linkEmail, linkName, linkAccessToken, linkRefreshToken)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Linked %s as user %d\n", user.Email, user.ID)
		return nil
	},
}

type userCreator interface {
	CreateUser(ctx context.Context, user *models.User) error
}

func linkUser(ctx context.Context, users userCreator, email, name, accessToken, refreshToken string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("--email is required")
	}
	if accessToken == "" || refreshToken == "" {
		return nil, fmt.Errorf("--access-token and --refresh-token are required")
	}

	user := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		AccessToken:  &accessToken,
		RefreshToken: &refreshToken,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to link %s: %w", email, err)
	}
	return user, nil
}

func init() {
	linkCmd.Flags().StringVar(&linkEmail, "email", "", "account email")
	linkCmd.Flags().StringVar(&linkName, "name", "", "display name")
	linkCmd.Flags().StringVar(&linkAccessToken, "access-token", "", "Fitbit access token")
	linkCmd.Flags().StringVar(&linkRefreshToken, "refresh-token", "", "Fitbit refresh token")
	rootCmd.AddCommand(linkCmd)
}
