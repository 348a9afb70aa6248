// Package auth provides inbound request authentication for the gateway.
//
// Authenticators vote with three outcomes: Yes (valid credentials), No
// (credentials present but invalid), and Abstain (credential type not
// handled, try the next authenticator). A chain evaluates voters in order
// and falls back to a configurable default when everyone abstains.
package auth
