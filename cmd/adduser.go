package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campuskv/campuskv/internal/api"
	"github.com/campuskv/campuskv/internal/config"
)

var (
	addUserID    string
	addUserRoles []string
)

var addUserCmd = &cobra.Command{
	Use:   "adduser",
	Short: "Provision an API user and print its key",
	Run:   runAddUser,
}

func init() {
	addUserCmd.Flags().StringVar(&addUserID, "id", "", "User identifier")
	addUserCmd.Flags().StringSliceVar(&addUserRoles, "roles", []string{string(api.RoleRead)}, "Roles: read, write, admin")
	addUserCmd.MarkFlagRequired("id")
}

func runAddUser(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	keyStore, err := api.NewFileAPIKeyStore(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open API key store: %v\n", err)
		os.Exit(1)
	}

	roles := make([]api.Role, 0, len(addUserRoles))
	for _, r := range addUserRoles {
		switch api.Role(r) {
		case api.RoleRead, api.RoleWrite, api.RoleAdmin:
			roles = append(roles, api.Role(r))
		default:
			fmt.Fprintf(os.Stderr, "unknown role %q\n", r)
			os.Exit(1)
		}
	}

	user, err := api.NewAuthManager(keyStore).CreateUser(addUserID, roles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("user %s created\napi key: %s\n", user.ID, user.APIKey)
}
