package store

import "testing"

func TestListAssetsByOwner(t *testing.T) {
	f := newFixture(t)

	if _, err := CreateAsset(f.ctx, f.db, "AST-0003", f.laptop.ID, "HP", "", "000202"); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	held, err := ListAssets(f.ctx, f.db, "000101")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(held) != 2 || held[0].RegisterNumber != "AST-0001" {
		t.Errorf("expected 000101's two assets in register order, got %+v", held)
	}

	all, err := ListAssets(f.ctx, f.db, "")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 assets, got %d", len(all))
	}

	if _, err := CreateAsset(f.ctx, f.db, "AST-0003", f.laptop.ID, "HP", "", "000202"); err == nil {
		t.Error("expected duplicate register number to fail")
	}
}

func TestAssetTypes(t *testing.T) {
	f := newFixture(t)

	if _, err := CreateAssetType(f.ctx, f.db, "Desk"); err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	types, err := ListAssetTypes(f.ctx, f.db)
	if err != nil {
		t.Fatalf("ListAssetTypes: %v", err)
	}
	if len(types) != 2 {
		t.Errorf("expected 2 types, got %d", len(types))
	}

	missing, err := GetAssetType(f.ctx, f.db, 999)
	if err != nil {
		t.Fatalf("GetAssetType: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing type")
	}
}
