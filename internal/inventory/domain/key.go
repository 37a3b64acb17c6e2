package inventory

import "fmt"

// BirdType identifies the species dimension of a stock pool.
type BirdType string

const (
	BirdBroiler    BirdType = "BROILER"
	BirdParentCull BirdType = "PARENT_CULL"
)

// InventoryType identifies the processing state of a stock pool.
type InventoryType string

const (
	InvLive     InventoryType = "LIVE"
	InvSkin     InventoryType = "SKIN"
	InvSkinless InventoryType = "SKINLESS"
)

// NormalizeBirdType validates a bird type string.
func NormalizeBirdType(value string) (BirdType, bool) {
	switch BirdType(value) {
	case BirdBroiler, BirdParentCull:
		return BirdType(value), true
	default:
		return "", false
	}
}

// NormalizeInventoryType validates an inventory type string.
func NormalizeInventoryType(value string) (InventoryType, bool) {
	switch InventoryType(value) {
	case InvLive, InvSkin, InvSkinless:
		return InventoryType(value), true
	default:
		return "", false
	}
}

// StockKey identifies a distinct stock pool per store.
type StockKey struct {
	StoreID       int
	BirdType      BirdType
	InventoryType InventoryType
}

// NewStockKey builds a validated stock key.
func NewStockKey(storeID int, birdType BirdType, invType InventoryType) (StockKey, error) {
	if storeID <= 0 {
		return StockKey{}, ErrInvalidStore
	}
	if _, ok := NormalizeBirdType(string(birdType)); !ok {
		return StockKey{}, ErrInvalidBirdType
	}
	if _, ok := NormalizeInventoryType(string(invType)); !ok {
		return StockKey{}, ErrInvalidInventoryType
	}
	return StockKey{StoreID: storeID, BirdType: birdType, InventoryType: invType}, nil
}

// String returns the canonical lock/sort representation.
// The fixed-width store segment keeps lexicographic order stable.
func (k StockKey) String() string {
	return fmt.Sprintf("%06d|%s|%s", k.StoreID, k.BirdType, k.InventoryType)
}

// Less orders keys lexicographically by their canonical form.
func (k StockKey) Less(other StockKey) bool {
	return k.String() < other.String()
}
