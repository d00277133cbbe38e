package recognition

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	userId := uuid.New()
	at := time.Date(2026, 10, 19, 8, 30, 0, 123000000, time.UTC)

	id := New(KindSubscription, userId, at)
	assert.LessOrEqual(t, len(id), 50)
	assert.True(t, strings.HasPrefix(id, "SUB-"))

	rec, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, rec.Kind)
	assert.Equal(t, userId, rec.UserId)
	assert.True(t, rec.CreatedAt.Equal(at))
	assert.True(t, rec.IsSubscription())
	assert.Equal(t, id, rec.String())
}

func TestParseOnrampKind(t *testing.T) {
	id := New(KindOnramp, uuid.New(), time.Now())
	rec, err := Parse(id)
	require.NoError(t, err)
	assert.False(t, rec.IsSubscription())
}

func TestParseRejectsMalformed(t *testing.T) {
	userHex := strings.ReplaceAll(uuid.New().String(), "-", "")

	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "two segments", id: "SUB-" + userHex},
		{name: "unknown kind", id: "XYZ-" + userHex + "-1700000000000"},
		{name: "short user", id: "SUB-abc-1700000000000"},
		{name: "non hex user", id: "SUB-" + strings.Repeat("z", 32) + "-1700000000000"},
		{name: "bad timestamp", id: "SUB-" + userHex + "-yesterday"},
		{name: "negative timestamp", id: "SUB-" + userHex + "--5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.id)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
