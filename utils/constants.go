package utils

import (
	"time"
)

// Request-scoped context keys set by handlers
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
	AdminKey      ContextKey = "admin_username"
)

// Token and session time constants
const (
	// AccessTokenTTL is the default time-to-live for admin access tokens (12 hours)
	AccessTokenTTL = 12 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Pipeline constants
const (
	// DefaultQuantity is used when a purchase reports no quantity
	DefaultQuantity = 1

	// ProvisioningOrderType is the only order type the provisioner is asked for
	ProvisioningOrderType = "sim"

	// DefaultPageSize is the page size of admin listings
	DefaultPageSize = 50

	// MaxPageSize caps admin listings and exports
	MaxPageSize = 1000
)
