// Package orderid generates and parses externally visible order identifiers.
//
// An order id has the form {TYPE}_{yyyyMMddHHmmss}_{8-hex}, e.g.
// "SUB_20250828143015_a1b2c3d4". It is generated exactly once per outbound
// charge, never reused, and is the idempotency key correlating the charge
// with its eventual gateway callback.
package orderid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Type identifies what kind of charge an order id belongs to.
type Type string

const (
	TypeOrder          Type = "ORD" // generic one-off order
	TypeSubscription   Type = "SUB" // subscription charge
	TypeCreditPurchase Type = "CRD" // credit package purchase
	TypeTokenCharge    Type = "CHG" // recurring charge against a billing token
)

const timeLayout = "20060102150405"

var (
	ErrInvalidOrderID = errors.New("invalid order id")
	ErrUnknownType    = errors.New("unknown order type")
)

var orderIDPattern = regexp.MustCompile(`^(ORD|SUB|CRD|CHG)_(\d{14})_([0-9a-f]{8})$`)

// Valid reports whether t is one of the known order types.
func (t Type) Valid() bool {
	switch t {
	case TypeOrder, TypeSubscription, TypeCreditPurchase, TypeTokenCharge:
		return true
	}
	return false
}

// New generates a fresh order id of the given type using the current UTC time.
func New(t Type) (string, error) {
	return NewAt(t, time.Now().UTC())
}

// NewAt generates an order id with an explicit timestamp. Exposed for tests
// that need deterministic time components.
func NewAt(t Type, at time.Time) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order id suffix: %w", err)
	}

	return fmt.Sprintf("%s_%s_%s", t, at.UTC().Format(timeLayout), hex.EncodeToString(buf)), nil
}

// ID is a parsed order identifier.
type ID struct {
	Type      Type
	CreatedAt time.Time
	Suffix    string
}

// Parse validates an order id string and decomposes it.
func Parse(s string) (ID, error) {
	m := orderIDPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, s)
	}

	createdAt, err := time.Parse(timeLayout, m[2])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, s)
	}

	return ID{
		Type:      Type(m[1]),
		CreatedAt: createdAt.UTC(),
		Suffix:    m[3],
	}, nil
}
