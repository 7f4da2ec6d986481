// Package credential owns the partner bearer credential used by
// cached-credential proxy calls.
//
// The pieces are layered so each can be tested on its own:
//
//   - Cache holds zero or one Credential and replaces it as a whole record.
//   - Acquirer trades the static partner Secrets for a fresh Credential. It
//     performs the network exchange only and never touches the Cache.
//   - Guard is the only writer of the Cache. EnsureFresh returns the cached
//     credential while it is valid and otherwise joins the single in-flight
//     acquisition, so concurrent callers never cause more than one login.
//   - Refresher forces an acquisition on a cron schedule through the same
//     Guard, so steady traffic never waits on a cold cache.
//
// Client-supplied credentials never pass through this package.
package credential
