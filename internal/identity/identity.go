// Package identity implements the Custodia authentication layer.
//
// It provides:
//   - KeyManager        — creates/loads the RSA key that signs actor tokens
//   - ActorTokenIssuer  — issues and verifies RS256 actor session JWTs
package identity
