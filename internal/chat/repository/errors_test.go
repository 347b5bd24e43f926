package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	errprocess "chat_sync_service/pkg/err"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errprocess.Kind
	}{
		{"mongo no documents", mongo.ErrNoDocuments, errprocess.NotFound},
		{"pgx no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), errprocess.NotFound},
		{"redis nil", redis.Nil, errprocess.NotFound},
		{"deadline", context.DeadlineExceeded, errprocess.NetworkUnavailable},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, errprocess.NetworkUnavailable},
		{"mongo unauthorized", &mongo.CommandError{Code: 13, Message: "not authorized"}, errprocess.PermissionDenied},
		{"pg insufficient privilege", &pgconn.PgError{Code: "42501"}, errprocess.PermissionDenied},
		{"unknown", errors.New("weird"), errprocess.Unknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := classify("op", c.err)
			assert.Equal(t, c.want, errprocess.KindOf(err))
			assert.ErrorIs(t, err, c.err)
		})
	}
}

func TestClassifyKeepsClassified(t *testing.T) {
	orig := errprocess.New(errprocess.PermissionDenied, "inner", errors.New("nope"))
	assert.Same(t, orig, classify("outer", orig))
	assert.Nil(t, classify("op", nil))
}
