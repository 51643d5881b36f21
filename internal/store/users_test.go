package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/erazemk/assetflow/internal/db"
	"github.com/erazemk/assetflow/internal/model"
)

func createUser(t *testing.T, ctx context.Context, database *sql.DB, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(ctx, database, NewUser{
		Username:     username,
		FullName:     "Employee " + username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := createUser(t, ctx, database, "000101", model.RoleUser)
	if user.Username != "000101" {
		t.Errorf("expected username '000101', got %q", user.Username)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.FullName != "Employee 000101" {
		t.Errorf("expected full name to round-trip, got %q", got.FullName)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createUser(t, ctx, database, "alice", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("expected alice, got %+v", user)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsersByRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createUser(t, ctx, database, "a", model.RoleUser)
	createUser(t, ctx, database, "b", model.RoleManager)

	all, err := ListUsers(ctx, database, "")
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 users, got %d", len(all))
	}

	managers, _ := ListUsers(ctx, database, model.RoleManager)
	if len(managers) != 1 || managers[0].Username != "b" {
		t.Errorf("expected only manager b, got %+v", managers)
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := createUser(t, ctx, database, "deleteme", model.RoleUser)
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, _ := ListUsers(ctx, database, "")
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	if err := DeleteUser(ctx, database, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	// Username can be reused after soft delete.
	createUser(t, ctx, database, "deleteme", model.RoleUser)
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := createUser(t, ctx, database, "pwuser", model.RoleUser)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
