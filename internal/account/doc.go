// Package account persists OAuth-linked mailboxes.
//
// Each Account row holds the mailbox address, its refresh and access tokens
// sealed by crypto.Cipher, the access token expiry and the bcrypt hash of the
// API key SMTP clients log in with. Store is the only type that encrypts or
// decrypts those columns.
//
// The database handle is opened with Open and passed to NewStore; there is
// no package-level connection.
package account
