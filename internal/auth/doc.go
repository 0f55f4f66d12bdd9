// Package auth protects the relay's HTTP API with bearer tokens.
//
// Tokens are HS256-signed JWTs carrying the caller's identity in the "sub"
// claim and the issuer "agent-relay". The secret comes from auth.jwt_secret
// and must be at least MinSecretLength bytes; when it is empty the relay
// runs without authentication.
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	mux.Handle("POST /chat", auth.HTTPAuthMiddleware(verifier, logger)(chatHandler))
//
// Handlers read the caller with FromContext. Tokens for local use are minted
// by the "agent-relay token" command.
package auth
