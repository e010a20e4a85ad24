// Package gmail delivers messages through the Gmail API on behalf of a
// registered account.
//
// Messages arrive as raw RFC 5322 bytes from the SMTP listener. Rewrite
// aligns the From header with the authenticated mailbox and makes sure every
// envelope recipient is addressed, then Sender hands the bytes to
// users.messages.send authorized by a short-lived access token.
package gmail
