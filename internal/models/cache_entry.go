package models

import "time"

// CacheEntry is a cached value with an absolute expiry.
type CacheEntry struct {
	Key       string    `bson:"key" json:"key"`
	Value     []byte    `bson:"value" json:"value"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
