// Package cmd implements the command-line interface for smtpbridge.
//
// This package provides the following commands:
//   - serve: Run the SMTP listener and the registration web server
//   - account: List, show, delete and migrate stored accounts
//   - keygen: Generate an encryption key for tokens at rest
//   - send-test: Send a test message through a running bridge
//   - version: Display version information
//
// Every flag falls back to an environment variable when it is not set on the
// command line. The persistent --env-file flag loads a dotenv file first.
package cmd
