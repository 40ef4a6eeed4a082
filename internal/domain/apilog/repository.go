package apilog

import (
	"context"
)

type Repository interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
