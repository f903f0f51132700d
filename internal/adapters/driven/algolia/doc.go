// Package algolia implements the driven.SearchBackend port over the Algolia
// search API.
//
// Requests go through a RateLimiter that throttles proactively with a token
// bucket and pauses after the API answers 429. Client errors are mapped to
// the domain error kinds: 404 to domain.ErrNotFound, other 4xx to
// domain.ErrRemoteRejected, everything else to domain.ErrRemoteUnavailable.
package algolia
