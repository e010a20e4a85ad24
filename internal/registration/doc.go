// Package registration links a Google mailbox to the bridge and issues its
// SMTP API key.
//
// A flow starts at AuthorizationURL, which sends the user to Google's consent
// screen with the action ("register" or "regenerate") as OAuth state. Google
// redirects back with that state and a one-time code, and HandleCallback
// exchanges the code, checks that gmail.send was granted and either creates
// the account or rotates its key. No server-side session is kept between the
// two steps.
//
// The plaintext API key only ever appears in the Outcome of a successful
// registration or regeneration.
package registration
