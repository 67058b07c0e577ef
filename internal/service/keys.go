package service

import "fmt"

// Query cache keys. Detail and cart payloads embed user-specific fields
// (cart quantity, like state), so their keys are scoped per user.

func cartKey(userID string) string {
	return "cart:" + userID
}

func detailKey(productID, userID string) string {
	return "product-detail:" + productID + ":" + userID
}

func profileKey(userID string) string {
	return "profile:" + userID
}

func productsKey(limit, offset int) string {
	return fmt.Sprintf("products:%d:%d", limit, offset)
}

func popularKey(maxResults int) string {
	return fmt.Sprintf("products:popular:%d", maxResults)
}

func itemLockKey(cartItemID string) string {
	return "cart-item:" + cartItemID
}
