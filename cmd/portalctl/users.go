package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal/internal/identity"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/pkg/db"
	"docportal/pkg/rbac"
	"docportal/pkg/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userEmail    string
	userName     string
	userRole     string
	userPassword string
	tokenUser    string
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "full name")
	userCreateCmd.Flags().StringVar(&userRole, "role", "client", "admin, consultant or client")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password (required)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)

	tokenIssueCmd.Flags().StringVar(&tokenUser, "user", "", "user id or email (required)")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(tokenIssueCmd)

	passwordCmd.AddCommand(passwordHashCmd)

	rootCmd.AddCommand(userCmd, tokenCmd, passwordCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user profile with a global role",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := rbac.ParseRole(userRole); !ok {
			return fmt.Errorf("unknown role %q", userRole)
		}
		hash, err := util.HashPassword(userPassword)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := db.NewConnection(cfg.DB, zap.NewNop())
		if err != nil {
			return err
		}
		defer pool.Close()

		u := &model.User{
			Email:        strings.TrimSpace(userEmail),
			FullName:     userName,
			Role:         userRole,
			PasswordHash: hash,
		}
		if err := repository.NewUserRepository(pool).Create(ctx, u); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.ID, u.Email)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := db.NewConnection(cfg.DB, zap.NewNop())
		if err != nil {
			return err
		}
		defer pool.Close()

		users := repository.NewUserRepository(pool)
		var u *model.User
		if strings.Contains(tokenUser, "@") {
			u, err = users.GetByEmail(ctx, tokenUser)
		} else {
			u, err = users.GetByID(ctx, tokenUser)
		}
		if err != nil {
			return err
		}

		token, expiresAt, err := identity.NewResolver(cfg.JWT).Issue(identity.Principal{ID: u.ID, Email: u.Email})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Password utilities",
}

var passwordHashCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Print the bcrypt hash of a password (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pw string
		if len(args) == 1 {
			pw = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			pw = strings.TrimRight(line, "\r\n")
		}
		if pw == "" {
			return errors.New("password must not be empty")
		}
		hash, err := util.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
