// Package auth issues and validates admin sessions.
//
// A session token is 20 random bytes encoded as lower-case base32 without
// padding. The client holds the token in the "session" cookie; the server
// stores only its SHA-256 hex digest as the session id, so a leaked session
// table cannot be replayed. Sessions last 30 days and are extended to a fresh
// 30 days once fewer than 15 remain.
//
// Passwords are argon2id PHC strings. Legacy bcrypt hashes also verify.
package auth
