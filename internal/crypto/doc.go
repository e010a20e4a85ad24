// Package crypto protects the credentials smtpbridge keeps at rest.
//
// OAuth tokens are sealed with AES-256-GCM into a text envelope of three
// colon-separated hex segments:
//
//	hex(nonce):hex(tag):hex(ciphertext)
//
// The nonce is 12 random bytes drawn per call and the tag is the 16 byte GCM
// authentication tag. Any envelope that does not parse or does not
// authenticate is reported as ErrTamperedOrCorrupt; decryption never falls
// back to returning its input.
//
// API keys are never encrypted. They are hashed with bcrypt and can only be
// verified afterwards.
package crypto
