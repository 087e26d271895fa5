package enrollment

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	lrnLength = 12

	tempPasswordLength  = 10
	tempPasswordCharset = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// generateLRN returns a random 12-digit Learner Reference Number. Uniqueness
// is not guaranteed by construction; at expected scale the collision
// probability is negligible and the account email remains the hard identity.
func generateLRN() (string, error) {
	return randomString("0123456789", lrnLength)
}

// generateTempPassword returns a short random alphanumeric password handed to
// a freshly provisioned student. Ambiguous characters (0/O, 1/l/I) are left
// out of the charset.
func generateTempPassword() (string, error) {
	return randomString(tempPasswordCharset, tempPasswordLength)
}

func randomString(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		buf[i] = charset[n.Int64()]
	}
	return string(buf), nil
}
