package core

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Uuid identifies handles and anything else that must be unique within the
// process. The zero value is the nil Uuid.
type Uuid uuid.UUID

var (
	// namespace is random per process so values from different runs never collide.
	namespace   = uuid.New()
	uuidCounter = uint64(time.Now().UnixNano())
)

// NewUuid hashes the process namespace together with a monotonically
// increasing counter (SHA-1, RFC 4122 version 5).
func NewUuid() Uuid {
	ctr := atomic.AddUint64(&uuidCounter, 1)
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], uint64(time.Now().UnixNano()))
	return Uuid(uuid.NewSHA1(namespace, b[:]))
}

func ParseUuid(s string) (Uuid, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Uuid{}, err
	}
	return Uuid(u), nil
}

func (u Uuid) IsNil() bool {
	return uuid.UUID(u) == uuid.Nil
}

func (u Uuid) String() string {
	return uuid.UUID(u).String()
}

func (u Uuid) MarshalText() ([]byte, error) {
	return uuid.UUID(u).MarshalText()
}

func (u *Uuid) UnmarshalText(data []byte) error {
	var id uuid.UUID
	if err := id.UnmarshalText(data); err != nil {
		return err
	}
	*u = Uuid(id)
	return nil
}
