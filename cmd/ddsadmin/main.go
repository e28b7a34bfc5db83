package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/config"
	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/service"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newAccounts reads the config and opens the database. The caller must
// call the returned close func.
func newAccounts(ctx context.Context) (*service.AccountService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	db, err := config.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return &service.AccountService{
		Repo:  &repo.GormRepo{DB: db},
		Keys:  keys.New(cfg.RSAKeyBits),
		Clock: clock.Real{},
	}, closeFn, nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password must be entered on a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.IntoContext(cmd.Context(), logging.New(level, "ddsadmin"))
}

var rootCmd = &cobra.Command{
	Use:          "ddsadmin",
	Short:        "Administer the data delivery service",
	SilenceUsage: true,
}

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Manage units",
}

var unitCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		name, _ := cmd.Flags().GetString("name")
		ref, _ := cmd.Flags().GetString("ref")

		accounts, closeFn, err := newAccounts(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		unit, err := accounts.CreateUnit(ctx, nil, transport.NewUnitRequest{Name: name, InternalRef: ref})
		if err != nil {
			return err
		}
		fmt.Printf("Unit created: id=%d ref=%s\n", unit.ID, unit.InternalRef)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		req := transport.NewUserRequest{}
		req.Username, _ = cmd.Flags().GetString("username")
		req.Name, _ = cmd.Flags().GetString("name")
		req.Email, _ = cmd.Flags().GetString("email")
		req.Role, _ = cmd.Flags().GetString("role")
		if cmd.Flags().Changed("unit") {
			unit, _ := cmd.Flags().GetUint("unit")
			req.UnitID = &unit
		}

		password, err := readPassword()
		if err != nil {
			return err
		}
		req.Password = password

		accounts, closeFn, err := newAccounts(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		user, err := accounts.CreateUser(ctx, nil, req)
		if err != nil {
			return err
		}
		fmt.Printf("User created: %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")

	unitCreateCmd.Flags().String("name", "", "unit name")
	unitCreateCmd.Flags().String("ref", "", "short internal reference used in project ids")
	_ = unitCreateCmd.MarkFlagRequired("name")
	_ = unitCreateCmd.MarkFlagRequired("ref")
	unitCmd.AddCommand(unitCreateCmd)

	userCreateCmd.Flags().String("username", "", "login name")
	userCreateCmd.Flags().String("name", "", "display name")
	userCreateCmd.Flags().String("email", "", "email address")
	userCreateCmd.Flags().String("role", "researcher", "researcher, unit-admin or super-admin")
	userCreateCmd.Flags().Uint("unit", 0, "unit id for unit admins")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCreateCmd)

	rootCmd.AddCommand(unitCmd, userCmd)
}
