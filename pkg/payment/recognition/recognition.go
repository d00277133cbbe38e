// Package recognition encodes the merchant recognition id embedded in every
// provider checkout. The id lets a provider order be mapped back to a user
// without trusting a client-supplied user id.
//
// Format: <KIND>-<user id, 32 hex>-<unix millis>. It fits the 50 character
// merchant order id limit of the payment provider.
package recognition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSubscription Kind = "SUB"
	KindOnramp       Kind = "ONR"
)

var ErrMalformed = errors.New("malformed recognition id")

type Recognition struct {
	Kind      Kind
	UserId    uuid.UUID
	CreatedAt time.Time
}

func (r Recognition) IsSubscription() bool {
	return r.Kind == KindSubscription
}

func (r Recognition) String() string {
	return New(r.Kind, r.UserId, r.CreatedAt)
}

// New builds a recognition id for userId at the given instant.
func New(kind Kind, userId uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", kind, strings.ReplaceAll(userId.String(), "-", ""), at.UnixMilli())
}

// Parse decodes a recognition id produced by New.
func Parse(id string) (Recognition, error) {
	parts := strings.Split(strings.TrimSpace(id), "-")
	if len(parts) != 3 {
		return Recognition{}, fmt.Errorf("%w: %q", ErrMalformed, id)
	}

	kind := Kind(strings.ToUpper(parts[0]))
	if kind != KindSubscription && kind != KindOnramp {
		return Recognition{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, parts[0])
	}

	if len(parts[1]) != 32 {
		return Recognition{}, fmt.Errorf("%w: bad user segment", ErrMalformed)
	}
	userId, err := uuid.Parse(parts[1])
	if err != nil {
		return Recognition{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || millis <= 0 {
		return Recognition{}, fmt.Errorf("%w: bad timestamp", ErrMalformed)
	}

	return Recognition{
		Kind:      kind,
		UserId:    userId,
		CreatedAt: time.UnixMilli(millis).UTC(),
	}, nil
}
