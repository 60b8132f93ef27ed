package model

// RateLimitRecord is the value persisted per client in the key-value store:
// the epoch-second timestamps of requests within the trailing window. The
// whole record expires server-side via TTL, there is no per-entry expiry.
type RateLimitRecord struct {
	Timestamps []int64 `json:"timestamps"`
}

// Prune drops entries at or before the cutoff, keeping original order.
func (r *RateLimitRecord) Prune(cutoff int64) {
	kept := r.Timestamps[:0]
	for _, ts := range r.Timestamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	r.Timestamps = kept
}

func (r *RateLimitRecord) Append(ts int64) {
	r.Timestamps = append(r.Timestamps, ts)
}

func (r *RateLimitRecord) Count() int {
	return len(r.Timestamps)
}
