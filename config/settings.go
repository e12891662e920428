package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ReconcilerEnabled starts the periodic reconciliation scheduler inside the API process.
//
// Set via env:
// - RECONCILE_ENABLED=true
func ReconcilerEnabled() bool {
	return boolFromEnv("RECONCILE_ENABLED")
}

func ReconcileInterval() time.Duration {
	return secondsFromEnv("RECONCILE_INTERVAL_SECONDS", 300)
}

// ReconcileWorkers bounds per-order parallelism inside one pass.
func ReconcileWorkers() int {
	n := intFromEnv("RECONCILE_WORKERS", 4)
	if n <= 0 {
		return 1
	}
	return n
}

// ReconcileLookupTimeout bounds one identity or snapshot lookup attempt.
func ReconcileLookupTimeout() time.Duration {
	return secondsFromEnv("RECONCILE_LOOKUP_TIMEOUT_SECONDS", 10)
}

func ReconcileLookupAttempts() int {
	n := intFromEnv("RECONCILE_LOOKUP_ATTEMPTS", 3)
	if n <= 0 {
		return 1
	}
	return n
}

func NotifyThrottleWindow() time.Duration {
	h := intFromEnv("NOTIFY_THROTTLE_HOURS", 24)
	if h <= 0 {
		h = 24
	}
	return time.Duration(h) * time.Hour
}

// OrderReferencePrefix is the token members put in the contract title, e.g. INDY-42.
func OrderReferencePrefix() string {
	v := strings.TrimSpace(os.Getenv("ORDER_REFERENCE_PREFIX"))
	if v == "" {
		return "INDY"
	}
	return strings.ToUpper(v)
}

func PriceCacheTTL() time.Duration {
	return secondsFromEnv("PRICE_CACHE_TTL_SECONDS", 900)
}

// PassLockBackend selects how passes are serialized per config: redis, mysql or local.
func PassLockBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PASS_LOCK_BACKEND")))
	switch v {
	case "redis", "mysql", "local":
		return v
	default:
		return "redis"
	}
}

// ExchangeAdminUserIDs is the fallback admin recipient list when no admin users are stored.
//
// Set via env:
// - EXCHANGE_ADMIN_USER_IDS="1,7"
func ExchangeAdminUserIDs() []int {
	raw := os.Getenv("EXCHANGE_ADMIN_USER_IDS")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil && n > 0 {
			ids = append(ids, n)
		}
	}
	return ids
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func secondsFromEnv(key string, def int) time.Duration {
	n := intFromEnv(key, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
