package shared

import "fmt"

// IdempotencyKey builds redis keys for client-supplied idempotency tokens.
func IdempotencyKey(module, key string) string {
	return fmt.Sprintf("stockdesk:idem:%s:%s", module, key)
}

// LowStockCacheKey is the redis key holding the cached low-stock listing.
func LowStockCacheKey() string {
	return "stockdesk:catalog:low-stock"
}
