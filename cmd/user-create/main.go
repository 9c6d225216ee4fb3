// Command user-create adds an account from the command line.
//
//	user-create -email admin@example.com -password secret123 -admin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/database"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/logging"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
)

func main() {
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password (min 8 characters)")
	name := flag.String("name", "", "full name")
	admin := flag.Bool("admin", false, "grant ROLE_ADMIN")
	flag.Parse()

	if err := run(*email, *password, *name, *admin); err != nil {
		fmt.Fprintln(os.Stderr, "user-create:", err)
		os.Exit(1)
	}
}

func run(email, password, name string, admin bool) error {
	if email == "" || password == "" {
		return errors.New("-email and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var roles []string
	if admin {
		roles = append(roles, models.RoleAdmin)
	}
	user, err := services.NewAuthService(db, cfg).CreateUser(context.Background(), email, password, name, roles...)
	if err != nil {
		return err
	}
	slog.Info("user created", "id", user.ID, "email", user.Email, "admin", admin)
	return nil
}
