// Package google wraps the Google OAuth endpoints smtpbridge talks to.
//
// It builds the oauth2.Config used for authorization and refresh, checks
// granted scopes, resolves the mailbox address through the userinfo API and
// revokes tokens. Endpoint URLs can be overridden so tests can point them at
// an httptest server.
package google
