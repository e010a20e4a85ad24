// Package smtpauth checks SMTP AUTH credentials against registered accounts.
//
// The SMTP username is the account email and the password is the account's
// API key. An unknown account and a wrong key produce the same public
// message, and both cost one bcrypt comparison.
package smtpauth
