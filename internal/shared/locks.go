package shared

import "fmt"

// DeliveryNumberLockKey serialises number allocation for one BL-YYMM prefix.
func DeliveryNumberLockKey(prefix string) string {
	return fmt.Sprintf("delivery:number:%s:lock", prefix)
}

// StockLockKey serialises stock read-modify-write for one product code.
func StockLockKey(productCode string) string {
	return fmt.Sprintf("inventory:stock:%s:lock", productCode)
}
