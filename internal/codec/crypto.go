package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/bindform/internal/ir"
)

// KeySize is the XChaCha20-Poly1305 key length.
const KeySize = chacha20poly1305.KeySize

type xchachaStage struct {
	key  []byte
	rand io.Reader
}

// XChaCha returns an authenticated encryption stage. Each Encode draws a
// fresh 24-byte nonce and prefixes it to the ciphertext.
func XChaCha(key []byte) (Stage, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCodec, KeySize, len(key))
	}
	return &xchachaStage{key: append([]byte(nil), key...), rand: rand.Reader}, nil
}

func (x *xchachaStage) Name() string { return "xchacha20poly1305" }

func (x *xchachaStage) Encode(src []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(src)+aead.Overhead())
	if _, err := io.ReadFull(x.rand, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, src, nil), nil
}

func (x *xchachaStage) Decode(src []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return nil, err
	}
	if len(src) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := src[:aead.NonceSize()], src[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plain, nil
}

// DeriveKey derives a stable encryption key from the form identifier and
// optional host entropy with HKDF-SHA256. The same inputs always yield
// the same key, so history written by one session decrypts in the next.
func DeriveKey(formID string, entropy []byte) ([]byte, error) {
	if formID == "" {
		return nil, fmt.Errorf("%w: empty form id", ErrCodec)
	}
	salt := sha256.Sum256([]byte(ir.DomainFormKey))
	r := hkdf.New(sha256.New, append([]byte(formID+"\x00"), entropy...), salt[:], []byte(ir.DomainFormKey))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// HostEntropy returns the sorted hardware addresses of the host's network
// interfaces. It is best-effort: an error or a host without hardware
// addresses yields nil.
func HostEntropy() []byte {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var addrs []string
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		addrs = append(addrs, iface.HardwareAddr.String())
	}
	if len(addrs) == 0 {
		return nil
	}
	sort.Strings(addrs)

	var out []byte
	for _, a := range addrs {
		out = append(out, a...)
		out = append(out, 0)
	}
	return out
}

// ForForm builds the codec for a form: optional zstd compression, then
// optional encryption keyed by DeriveKey(formID, entropy).
func ForForm(formID string, compress, encrypt bool, entropy []byte) (*Codec, error) {
	var stages []Stage
	if compress {
		stages = append(stages, Zstd())
	}
	if encrypt {
		key, err := DeriveKey(formID, entropy)
		if err != nil {
			return nil, err
		}
		enc, err := XChaCha(key)
		if err != nil {
			return nil, err
		}
		stages = append(stages, enc)
	}
	return New(stages...), nil
}
