package store

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotActionable    = errors.New("transfer item is awaiting approval")
	ErrAlreadyAccepted  = errors.New("transfer item already accepted")
	ErrAlreadyDecided   = errors.New("transfer already approved or rejected")
	ErrNotNewOwner      = errors.New("only the new owner can accept this item")
	ErrChecklistMissing = errors.New("required checklist items not completed")
	ErrChecklistUnknown = errors.New("unknown checklist item")
	ErrAssetInTransfer  = errors.New("asset already has an open transfer")
	ErrAssetNotOwned    = errors.New("asset is not held by the current owner")
)
