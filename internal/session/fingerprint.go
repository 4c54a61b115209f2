package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fjod/go_marketplace/internal/domain"
)

// fingerprintLine projects only the fields that define cart identity.
// Two carts with the same lines in a different order fingerprint equal.
type fingerprintLine struct {
	ProductID string   `json:"id"`
	ShopID    string   `json:"shop"`
	Quantity  int32    `json:"qty"`
	UnitPrice float64  `json:"price"`
	Options   []string `json:"opts,omitempty"`
}

// Fingerprint computes the canonical, order-independent hash of a cart.
func Fingerprint(cart []domain.CartLineSnapshot) (string, error) {
	lines := make([]fingerprintLine, len(cart))
	for i, l := range cart {
		opts := append([]string(nil), l.SelectedOptions...)
		sort.Strings(opts)
		lines[i] = fingerprintLine{
			ProductID: l.ProductID,
			ShopID:    l.ShopID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Options:   opts,
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].ShopID < lines[j].ShopID
	})

	data, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint lines: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
