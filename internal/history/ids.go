package history

import "github.com/google/uuid"

// IDGenerator names new entries. Tests use testutil.CountingGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default: v7 IDs carry their creation time in the
// high bits, so they sort the same way the log does.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
