// Package token hands out Gmail API access tokens for registered accounts.
//
// Manager reuses the encrypted access token cached on the account while more
// than the expiry buffer remains, and otherwise redeems the refresh token and
// persists the result. Concurrent callers for the same account are not
// coordinated: each may refresh, and the last write wins. Google treats
// refresh as idempotent per refresh token, so both callers receive a usable
// token.
package token
