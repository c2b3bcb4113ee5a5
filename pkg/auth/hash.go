package auth

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
)

// Algorithm is the crypt(3) scheme id announced in a login challenge.
type Algorithm int

const (
	MD5Crypt    Algorithm = 1
	SHA256Crypt Algorithm = 5
	SHA512Crypt Algorithm = 6
)

var (
	// ErrUnsupportedAlgorithm is a configuration-level failure; the handshake cannot proceed.
	ErrUnsupportedAlgorithm = errors.New("auth: unsupported hash algorithm")
	// ErrInvalidSalt rejects salts crypt(3) cannot encode.
	ErrInvalidSalt = errors.New("auth: invalid salt")
)

type scheme struct {
	prefix string
	new    func() crypt.Crypter
}

// SHA-crypt rounds stay implicit, so both SHA variants run the default 5000.
var schemes = map[Algorithm]scheme{
	MD5Crypt:    {prefix: md5_crypt.MagicPrefix, new: md5_crypt.New},
	SHA256Crypt: {prefix: sha256_crypt.MagicPrefix, new: sha256_crypt.New},
	SHA512Crypt: {prefix: sha512_crypt.MagicPrefix, new: sha512_crypt.New},
}

func (a Algorithm) String() string {
	switch a {
	case MD5Crypt:
		return "md5-crypt"
	case SHA256Crypt:
		return "sha256-crypt"
	case SHA512Crypt:
		return "sha512-crypt"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// Supported reports whether Digest can hash with a.
func (a Algorithm) Supported() bool {
	_, ok := schemes[a]
	return ok
}

// Digest returns the crypt(3) string for password and salt, e.g. "$5$salt$hash".
func Digest(alg Algorithm, password, salt string) (string, error) {
	s, ok := schemes[alg]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, int(alg))
	}
	if salt == "" || strings.ContainsAny(salt, "$\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSalt, salt)
	}
	return s.new().Generate([]byte(password), []byte(s.prefix+salt))
}

// FinalDigest returns the hex MD5 of "username:digest:nonce", the login hash.
func FinalDigest(username, digest, nonce string) string {
	sum := md5.Sum([]byte(username + ":" + digest + ":" + nonce))
	return hex.EncodeToString(sum[:])
}
