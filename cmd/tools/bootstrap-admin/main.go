// Command bootstrap-admin seeds or promotes an administrator account in the
// datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"folio-cms/internal/models"
	"folio-cms/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		email       string
		name        string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&email, "email", "", "Email address for the admin account")
	flag.StringVar(&name, "name", "Administrator", "Display name for the admin account")
	flag.StringVar(&password, "password", "", "Password for the admin account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if password == "" {
		fatalf("--password is required")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := bootstrapAdmin(ctx, repo, strings.TrimSpace(email), strings.TrimSpace(name), password)
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}

	state := "promoted"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Email, user.Name, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONStore(jsonPath)
	}
	return storage.NewPostgresStore(storage.PostgresConfig{DSN: postgresDSN})
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func bootstrapAdmin(ctx context.Context, repo storage.Repository, email, name, password string) (models.User, bool, error) {
	existing, found, err := repo.FindUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, false, err
	}
	if found {
		if err := repo.SetUserPassword(ctx, existing.ID, password); err != nil {
			return models.User{}, false, err
		}
		promoted, err := repo.PromoteAdmin(ctx, email)
		if err != nil {
			return models.User{}, false, err
		}
		return promoted, false, nil
	}

	if _, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Name:     name,
		Email:    email,
		Password: password,
	}); err != nil {
		return models.User{}, false, err
	}
	promoted, err := repo.PromoteAdmin(ctx, email)
	if err != nil {
		return models.User{}, false, err
	}
	return promoted, true, nil
}
