package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Name() string { return "mock" }

func newClient(p Provider) *Client {
	return NewClient(p, 4, 250, zap.NewNop(), nil)
}

func TestClient_Embed_Success(t *testing.T) {
	p := new(MockProvider)
	p.On("Embed", mock.Anything, "Exam").Return([]float32{0.1, 0.2}, nil)

	v, err := newClient(p).Embed(context.Background(), "  Exam  ")

	require.NoError(t, err)
	assert.Equal(t, shared.Vector{0.1, 0.2}, v)
	p.AssertExpectations(t)
}

func TestClient_Embed_EmptyTextIsInvalidArgument(t *testing.T) {
	p := new(MockProvider)

	_, err := newClient(p).Embed(context.Background(), " \t\n")

	assert.ErrorIs(t, err, apperrors.ErrEmptyContent)
	p.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestClient_Embed_Failures(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		err    error
	}{
		{"upstream error", nil, errors.New("503")},
		{"empty vector", []float32{}, nil},
		{"too many dims", []float32{1, 2, 3, 4, 5}, nil},
		{"nan", []float32{1, float32(math.NaN())}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockProvider)
			p.On("Embed", mock.Anything, "text").Return(tt.values, tt.err)

			_, err := newClient(p).Embed(context.Background(), "text")

			require.Error(t, err)
			assert.True(t, apperrors.IsEmbedding(err), "got %v", err)
		})
	}
}

func TestPrayerText(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "March 1, 2024, Exam, help me", PrayerText(at, "Exam", "help me", 250))
	assert.Equal(t, "March 1, 2024, help me", PrayerText(at, "", "help me", 250))
	assert.Equal(t, "March 1, 2024, Ex", PrayerText(at, "Exam", "", 17))
	assert.Equal(t, "", PrayerText(at, " ", "", 250))
}
