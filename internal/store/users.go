package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/assetflow/internal/model"
)

// NewUser holds the fields needed to create a user.
type NewUser struct {
	Username     string
	FullName     string
	Email        string
	Department   string
	CostCenter   string
	Location     string
	PasswordHash string
	Role         string
}

const userColumns = `id, username, full_name, email, department, cost_center, location,
	password_hash, role, created_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *model.User) error {
	return row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Department, &u.CostCenter,
		&u.Location, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sql.DB, nu NewUser) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, full_name, email, department, cost_center, location, password_hash, role)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nu.Username, nu.FullName, nu.Email, nu.Department, nu.CostCenter, nu.Location, nu.PasswordHash, nu.Role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users, optionally only those with at
// least the given role.
func ListUsers(ctx context.Context, db *sql.DB, minRole string) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		if minRole != "" && !model.RoleAtLeast(u.Role, minRole) {
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EmployeesByUsername returns owner references for all active users keyed
// by username.
func EmployeesByUsername(ctx context.Context, db *sql.DB) (map[string]*model.Employee, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT username, full_name, email FROM users WHERE deleted_at IS NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Employee)
	for rows.Next() {
		e := &model.Employee{}
		if err := rows.Scan(&e.RamcoID, &e.FullName, &e.Email); err != nil {
			return nil, fmt.Errorf("scanning employee: %w", err)
		}
		out[e.RamcoID] = e
	}
	return out, rows.Err()
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// employee looks up username in employees, falling back to a bare reference.
func employee(employees map[string]*model.Employee, username string) *model.Employee {
	if username == "" {
		return nil
	}
	if e, ok := employees[username]; ok {
		return e
	}
	return &model.Employee{RamcoID: username}
}
