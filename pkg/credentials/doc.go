// Package credentials issues and checks machine credentials for service accounts.
//
// A credential is a client ID / client secret pair. Both halves are drawn from
// crypto/rand and encoded as unpadded base64url:
//
//	svc := credentials.NewService(credentials.DefaultParams())
//	clientID := svc.GenerateClientID()         // 32 random bytes
//	secret := svc.GenerateClientSecret()       // 48 random bytes, shown once
//	hash, salt := svc.HashClientSecret(secret) // argon2id, stored
//
//	ok := svc.VerifyClientSecret(presented, salt, hash)
//
// Only the argon2id hash and its salt are ever persisted. Hashing is
// deliberately slow (tens of milliseconds with DefaultParams), so callers
// should not expect Create or RotateSecret to be sub-millisecond.
//
// A failing system RNG panics: it is not a recoverable business error.
package credentials
