package clientdata

import "time"

// TTLCurrentPrice is the default freshness window of a persisted last price.
// Overridden by PRICE_PERSIST_TTL.
const TTLCurrentPrice = 10 * time.Minute

// StaleRetention is how long an expired entry survives cleanup so it can still
// answer when the upstream is unreachable.
const StaleRetention = 7 * 24 * time.Hour
