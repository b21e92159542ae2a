package roicache

import "time"

// Policy decides whether a cached artifact may be reused.
// 'fingerprint' describes the current state of the artifact's sources, and
// may be empty if the caller does not track sources.
type Policy interface {
	Fresh(h Header, now time.Time, fingerprint string) bool
}

type PolicyFunc func(h Header, now time.Time, fingerprint string) bool

func (f PolicyFunc) Fresh(h Header, now time.Time, fingerprint string) bool {
	return f(h, now, fingerprint)
}

// UntilDeleted reuses an artifact for as long as it exists.
// Changes to the annotation files are not noticed.
func UntilDeleted() Policy {
	return PolicyFunc(func(h Header, now time.Time, fingerprint string) bool {
		return true
	})
}

// MaxAge reuses an artifact that is younger than maxAge
func MaxAge(maxAge time.Duration) Policy {
	return PolicyFunc(func(h Header, now time.Time, fingerprint string) bool {
		return now.Sub(h.CreatedAt) < maxAge
	})
}

// SourcesUnchanged reuses an artifact if it was built from sources with the same fingerprint
func SourcesUnchanged() Policy {
	return PolicyFunc(func(h Header, now time.Time, fingerprint string) bool {
		return h.Fingerprint == fingerprint
	})
}

// All is fresh only if every one of 'policies' is fresh
func All(policies ...Policy) Policy {
	return PolicyFunc(func(h Header, now time.Time, fingerprint string) bool {
		for _, p := range policies {
			if !p.Fresh(h, now, fingerprint) {
				return false
			}
		}
		return true
	})
}
