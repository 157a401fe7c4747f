package utils

type ContextKey string

const (
	AccountKey     ContextKey = "account"
	PermissionsKey ContextKey = "permissions"
	RequestIDKey   ContextKey = "request_id"

	// jwt claim names
	AccountIDClaim string = "account_id"
	PhoneClaim     string = "phone"
	ExpClaim       string = "exp"
)
