package admin

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	tokenOnce    sync.Once
	processToken string
)

// ProcessToken returns the random token this process presents to the admin
// service it launches. It is generated once per process.
func ProcessToken() string {
	tokenOnce.Do(func() {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		processToken = hex.EncodeToString(b)
	})
	return processToken
}

// newRequestID returns a ULID used to tie client and service log lines together.
func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
