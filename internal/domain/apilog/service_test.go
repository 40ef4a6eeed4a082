package apilog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, e Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func TestService_Record(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		entry   Entry
		saveErr error
		check   func(t *testing.T, e Entry)
	}{
		{
			name:  "fills created_at",
			entry: Entry{Direction: DirectionIn, Method: "POST", Path: "/api/v1/sync/full", StatusCode: 200},
			check: func(t *testing.T, e Entry) {
				assert.Equal(t, fixed, e.CreatedAt)
			},
		},
		{
			name:  "truncates long error",
			entry: Entry{Direction: DirectionOut, Error: strings.Repeat("x", 3000)},
			check: func(t *testing.T, e Entry) {
				assert.Len(t, e.Error, maxErrorLength)
			},
		},
		{
			name:  "truncation keeps utf-8 valid",
			entry: Entry{Direction: DirectionOut, Error: "x" + strings.Repeat("ç", 1500)},
			check: func(t *testing.T, e Entry) {
				assert.True(t, utf8.ValidString(e.Error))
				assert.Len(t, e.Error, maxErrorLength-1)
			},
		},
		{
			name:    "repository failure is swallowed",
			entry:   Entry{Direction: DirectionIn},
			saveErr: errors.New("disk full"),
			check:   func(t *testing.T, e Entry) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			var saved Entry
			repo.On("Save", mock.Anything, mock.AnythingOfType("apilog.Entry")).
				Run(func(args mock.Arguments) { saved = args.Get(1).(Entry) }).
				Return(tt.saveErr)

			svc := NewService(repo, slog.Default())
			svc.now = func() time.Time { return fixed }

			svc.Record(context.Background(), tt.entry)

			repo.AssertExpectations(t)
			tt.check(t, saved)
		})
	}
}

func TestService_Recent(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Recent", mock.Anything, defaultLimit).Return([]Entry{{ID: 1}}, nil).Once()
	repo.On("Recent", mock.Anything, 5).Return(nil, errors.New("boom")).Once()

	svc := NewService(repo, slog.Default())

	entries, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.Recent(context.Background(), 5)
	assert.ErrorContains(t, err, "boom")
	repo.AssertExpectations(t)
}
