package base

import "time"

// TTLField is the item attribute the service reads the expiry time from,
// in unix seconds.
const TTLField = "__expires"

// WriteOption configures put, insert and update calls.
type WriteOption func(*writeOptions)

type writeOptions struct {
	expireAt    time.Time
	expireIn    time.Duration
	hasExpireAt bool
	hasExpireIn bool
}

// WithExpireAt makes the written item expire at t. It takes precedence over
// WithExpireIn.
func WithExpireAt(t time.Time) WriteOption {
	return func(o *writeOptions) {
		o.expireAt = t
		o.hasExpireAt = true
	}
}

// WithExpireIn makes the written item expire d after the write.
func WithExpireIn(d time.Duration) WriteOption {
	return func(o *writeOptions) {
		o.expireIn = d
		o.hasExpireIn = true
	}
}

func collectWriteOptions(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// expires returns the expiry timestamp with the sub-second part dropped.
func (o writeOptions) expires(now time.Time) (int64, bool) {
	switch {
	case o.hasExpireAt:
		return o.expireAt.Unix(), true
	case o.hasExpireIn:
		return now.Add(o.expireIn).Unix(), true
	default:
		return 0, false
	}
}

// withTTL returns the item with the expiry attribute set. The caller's item
// is never modified.
func (o writeOptions) withTTL(it Item, now time.Time) Item {
	ts, ok := o.expires(now)
	if !ok {
		return it
	}
	out := it.Clone()
	out[TTLField] = ts
	return out
}
