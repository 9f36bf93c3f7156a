// Package id generates the host's runtime identifiers.
//
// Every id is a ULID with a short type prefix so logs stay readable:
// inst_* for a displayed mini-app instance, sess_* for a renderer session,
// req_* for an HTTP request and prm_* for a permission prompt. Mini-app ids
// and version ids come from the platform and are never generated here.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InstanceID identifies one displayed mini-app instance.
type InstanceID string

// SessionID identifies a renderer session.
type SessionID string

// RequestID identifies an API request.
type RequestID string

// PromptID identifies a pending permission prompt.
type PromptID string

const (
	InstancePrefix = "inst"
	SessionPrefix  = "sess"
	RequestPrefix  = "req"
	PromptPrefix   = "prm"
)

// Generator produces monotonic ULIDs.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a caller-provided entropy
// source, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate returns a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix returns prefix_ULID.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

func NewInstanceID() InstanceID {
	return InstanceID(Default().GenerateWithPrefix(InstancePrefix))
}

func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func NewPromptID() PromptID {
	return PromptID(Default().GenerateWithPrefix(PromptPrefix))
}

func (id InstanceID) String() string { return string(id) }
func (id SessionID) String() string  { return string(id) }
func (id RequestID) String() string  { return string(id) }
func (id PromptID) String() string   { return string(id) }

// IsValid reports whether id is a bare ULID or prefix_ULID.
func IsValid(id string) bool {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time of a bare or prefixed id.
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
