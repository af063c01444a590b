package utils

import (
	"github.com/google/uuid"
)

var newUUIDv7 = uuid.NewV7

// GenerateUUIDv7 returns a time-sortable id. Wallets, transactions,
// approvals and audit rows all key on v7 so creation order survives in the
// primary key; a random v4 covers the unlikely clock failure.
func GenerateUUIDv7() uuid.UUID {
	id, err := newUUIDv7()
	if err != nil {
		return uuid.New()
	}
	return id
}
