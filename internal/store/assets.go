package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/assetflow/internal/model"
)

// CreateAssetType creates a new asset type.
func CreateAssetType(ctx context.Context, db *sql.DB, name string) (*model.AssetType, error) {
	result, err := db.ExecContext(ctx, `INSERT INTO asset_types (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("creating asset type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset type id: %w", err)
	}
	return &model.AssetType{ID: id, Name: name}, nil
}

// GetAssetType returns an asset type by ID.
func GetAssetType(ctx context.Context, db *sql.DB, id int64) (*model.AssetType, error) {
	t := &model.AssetType{}
	err := db.QueryRowContext(ctx, `SELECT id, name FROM asset_types WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset type: %w", err)
	}
	return t, nil
}

// ListAssetTypes returns all asset types ordered by name.
func ListAssetTypes(ctx context.Context, db *sql.DB) ([]model.AssetType, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM asset_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing asset types: %w", err)
	}
	defer rows.Close()

	var types []model.AssetType
	for rows.Next() {
		var t model.AssetType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning asset type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// CreateAsset registers an asset held by owner.
func CreateAsset(ctx context.Context, db *sql.DB, registerNumber string, typeID int64, brand, modelName, owner string) (*model.Asset, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO assets (register_number, type_id, brand, model, owner) VALUES (?, ?, ?, ?, ?)`,
		registerNumber, typeID, brand, modelName, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("creating asset: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset id: %w", err)
	}
	return GetAsset(ctx, db, id)
}

const assetQuery = `SELECT a.id, a.register_number, a.type_id, t.name, a.brand, a.model, a.owner, a.created_at
	FROM assets a JOIN asset_types t ON t.id = a.type_id`

func scanAsset(row rowScanner, a *model.Asset) error {
	var owner string
	if err := row.Scan(&a.ID, &a.RegisterNumber, &a.Type.ID, &a.Type.Name, &a.Brand, &a.Model, &owner, &a.CreatedAt); err != nil {
		return err
	}
	if owner != "" {
		a.Owner = &model.Employee{RamcoID: owner}
	}
	return nil
}

// GetAsset returns an asset by ID.
func GetAsset(ctx context.Context, db *sql.DB, id int64) (*model.Asset, error) {
	a := &model.Asset{}
	err := scanAsset(db.QueryRowContext(ctx, assetQuery+` WHERE a.id = ?`, id), a)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	return a, nil
}

// ListAssets returns assets, optionally only those held by owner.
func ListAssets(ctx context.Context, db *sql.DB, owner string) ([]model.Asset, error) {
	query := assetQuery
	var args []any
	if owner != "" {
		query += ` WHERE a.owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY a.register_number`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		if err := scanAsset(rows, &a); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
