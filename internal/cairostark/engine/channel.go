package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

func bytesToBigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// Channel is a Fiat-Shamir transcript, following the teacher's
// utils/channel.go Send/Receive pattern, specialised to the Cairo prime
// field instead of a generic core.Field/Goldilocks split.
type Channel struct {
	state    []byte
	proof    []string
	hashFunc string
}

// NewChannel returns an empty transcript using hashFunc ("sha3" or
// "sha256"); an empty string defaults to "sha3", matching the teacher's
// NewChannel.
func NewChannel(hashFunc string) *Channel {
	if hashFunc == "" {
		hashFunc = "sha3"
	}
	return &Channel{state: []byte{0}, proof: make([]string, 0, 64), hashFunc: hashFunc}
}

// Send absorbs data into the transcript (a commitment root, a polynomial
// evaluation, etc).
func (c *Channel) Send(data []byte) {
	c.proof = append(c.proof, fmt.Sprintf("send:%s", hex.EncodeToString(data)))
	c.state = c.hash(append(append([]byte{}, c.state...), data...))
}

// SendFelt absorbs a field element's canonical encoding.
func (c *Channel) SendFelt(f field.Felt) {
	b := f.Bytes()
	c.Send(b[:])
}

// ReceiveFelt squeezes a verifier-randomness field element out of the
// transcript state.
func (c *Channel) ReceiveFelt() field.Felt {
	v := field.FromBigInt(bytesToBigInt(c.state))
	c.proof = append(c.proof, fmt.Sprintf("receive:%s", v.String()))
	c.state = c.hash(c.state)
	return v
}

// ReceiveIndex squeezes a query index in [0, domainSize).
func (c *Channel) ReceiveIndex(domainSize int) int {
	v := bytesToBigInt(c.state)
	idx := int(v.Uint64() % uint64(domainSize))
	c.proof = append(c.proof, fmt.Sprintf("receiveIdx:%d", idx))
	c.state = c.hash(c.state)
	return idx
}

func (c *Channel) hash(data []byte) []byte {
	switch c.hashFunc {
	case "sha256":
		h := sha256.Sum256(data)
		return h[:]
	default:
		h := sha3.Sum256(data)
		return h[:]
	}
}

// State returns the channel's current absorbed state.
func (c *Channel) State() []byte {
	return append([]byte(nil), c.state...)
}

// Proof returns the recorded transcript (for debugging/inspection).
func (c *Channel) Proof() []string {
	return append([]string(nil), c.proof...)
}
