// Package randomness implements a verifiable randomness oracle. Each request is answered with an
// ed25519 signature over the request; the random value is derived from the signature, so anyone
// holding the oracle's public key can check that a value was not chosen by the caller.
package randomness

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrRequestNotFound = errors.New("randomness request not found")
	ErrInvalidKey      = errors.New("oracle key must be at least 32 bytes")
)

var oracleSalt = []byte("homechance-randomness")

type Fulfillment struct {
	Value       uint64    `json:"value"`
	Proof       []byte    `json:"proof"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

type Request struct {
	ID          string       `json:"id"`
	RaffleID    string       `json:"raffle_id"`
	Seed        []byte       `json:"seed"`
	CreatedAt   time.Time    `json:"created_at"`
	Fulfillment *Fulfillment `json:"fulfillment,omitempty"`
}

// Oracle keeps its requests in memory and is safe for concurrent use.
type Oracle struct {
	mu       sync.Mutex
	key      ed25519.PrivateKey
	requests map[string]*Request
	now      func() time.Time
}

// NewOracle derives the signing key from secret.
func NewOracle(secret []byte) (*Oracle, error) {
	if len(secret) < ed25519.SeedSize {
		return nil, ErrInvalidKey
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, oracleSalt, []byte("oracle-signing-key")), seed); err != nil {
		return nil, fmt.Errorf("derive oracle key: %w", err)
	}

	return &Oracle{
		key:      ed25519.NewKeyFromSeed(seed),
		requests: map[string]*Request{},
		now:      time.Now,
	}, nil
}

func (o *Oracle) PublicKey() ed25519.PublicKey {
	return o.key.Public().(ed25519.PublicKey)
}

// Request registers a randomness request for raffleID committed to seed.
func (o *Oracle) Request(ctx context.Context, raffleID string, seed []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	request := &Request{
		ID:        uuid.NewString(),
		RaffleID:  raffleID,
		Seed:      append([]byte(nil), seed...),
		CreatedAt: o.now().UTC(),
	}
	o.requests[request.ID] = request
	return request.ID, nil
}

// Fulfill answers a request. Answering the same request again returns the first fulfillment.
func (o *Oracle) Fulfill(ctx context.Context, requestID string) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	request, ok := o.requests[requestID]
	if !ok {
		return Request{}, ErrRequestNotFound
	}

	if request.Fulfillment == nil {
		proof := ed25519.Sign(o.key, message(*request))
		request.Fulfillment = &Fulfillment{
			Value:       valueOf(proof),
			Proof:       proof,
			FulfilledAt: o.now().UTC(),
		}
	}
	return *request, nil
}

func (o *Oracle) Get(requestID string) (Request, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	request, ok := o.requests[requestID]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return *request, nil
}

// Verify checks that the request's fulfillment was produced by the holder of publicKey.
func Verify(publicKey ed25519.PublicKey, request Request) bool {
	if request.Fulfillment == nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if !ed25519.Verify(publicKey, message(request), request.Fulfillment.Proof) {
		return false
	}
	return valueOf(request.Fulfillment.Proof) == request.Fulfillment.Value
}

func message(request Request) []byte {
	h := sha256.New()
	h.Write([]byte(request.ID))
	h.Write([]byte{0})
	h.Write([]byte(request.RaffleID))
	h.Write([]byte{0})
	h.Write(request.Seed)
	return h.Sum(nil)
}

func valueOf(proof []byte) uint64 {
	sum := sha256.Sum256(proof)
	return binary.BigEndian.Uint64(sum[:8])
}
