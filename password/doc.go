// Package password hashes stored credentials with argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The package never stores, logs or compares plaintext outside [Argon2.Verify].
// Password policy beyond "not empty" is the caller's concern.
package password
