// Package http contains the HTTP handlers of the license server. Handlers
// translate between wire requests and the plain-data contracts of the core:
// no transport type crosses into the registry or the engine, and every
// domain rejection is rendered as an RFC 7807 problem.
package http
