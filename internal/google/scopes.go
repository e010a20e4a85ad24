package google

import (
	"strings"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// ScopeGmailSend is the only mail capability smtpbridge needs.
const ScopeGmailSend = gmail.GmailSendScope

// DefaultOAuthScopes are requested on every authorization.
//
//   - openid and userinfo.email resolve the mailbox address
//   - gmail.send delivers messages
var DefaultOAuthScopes = []string{
	oauth2api.OpenIDScope,
	oauth2api.UserinfoEmailScope,
	ScopeGmailSend,
}

// GrantedScopes returns the space-separated scope string the token endpoint
// reported for tok, or "" if it reported none.
func GrantedScopes(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		return scope
	}
	return ""
}

// HasScope reports whether want appears in a space-separated scope list.
func HasScope(granted, want string) bool {
	for _, scope := range strings.Fields(granted) {
		if scope == want {
			return true
		}
	}
	return false
}

// CanSendMail reports whether tok grants a scope that allows sending through
// the Gmail API. Full mailbox access implies send.
func CanSendMail(tok *oauth2.Token) bool {
	granted := GrantedScopes(tok)
	return HasScope(granted, ScopeGmailSend) || HasScope(granted, gmail.MailGoogleComScope)
}
