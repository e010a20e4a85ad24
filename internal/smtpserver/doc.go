// Package smtpserver accepts mail over SMTP and relays it through Gmail.
//
// It adapts github.com/emersion/go-smtp: the Backend creates one session per
// connection, AUTH PLAIN and AUTH LOGIN are checked by smtpauth, and DATA is
// rewritten and sent with the account's access token. Failures are mapped to
// SMTP reply codes so clients know whether to retry.
package smtpserver
