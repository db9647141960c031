// Package password verifies stored credential hashes.
//
// Two encodings are accepted, so accounts provisioned by older services keep
// working:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//	$2a$<cost>$<salt+hash>   (also $2b$ and $2y$)
//
// [Verifier] picks the scheme from the hash prefix. New hashes are always
// argon2id; [Verifier.NeedsRehash] reports hashes that should be upgraded on
// the next successful login.
//
// Password strength policy is out of scope; callers own it.
package password
