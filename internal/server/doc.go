// Package server provides the HTTP side of smtpbridge: the registration
// pages that walk a user through Google consent, Kubernetes health probes,
// and a separate Prometheus metrics listener.
//
// # Routes
//
//	GET /                index with register and regenerate links
//	GET /register        redirect to Google consent (state=register)
//	GET /regenerate      redirect to Google consent (state=regenerate)
//	GET /oauth/callback  complete the flow and show the result
//	GET /healthz         liveness
//	GET /readyz          readiness, including a database ping
//
// Every response carries restrictive security headers. Pages that display an
// API key are marked no-store.
package server
