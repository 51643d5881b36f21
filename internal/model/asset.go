package model

import "time"

// AssetType groups assets that share an acceptance checklist.
type AssetType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Asset is a single register-numbered piece of equipment.
type Asset struct {
	ID             int64     `json:"id"`
	RegisterNumber string    `json:"register_number"`
	Type           AssetType `json:"type"`
	Brand          string    `json:"brand,omitempty"`
	Model          string    `json:"model,omitempty"`
	Owner          *Employee `json:"owner,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AssetRef is the part of an asset embedded in transfer items.
type AssetRef struct {
	ID             int64     `json:"id"`
	RegisterNumber string    `json:"register_number"`
	Type           AssetType `json:"type"`
}

// Employee identifies an asset owner by ramco id.
type Employee struct {
	RamcoID  string `json:"ramco_id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}
