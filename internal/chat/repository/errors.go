package repository

import (
	"context"
	"errors"
	"net"

	errprocess "chat_sync_service/pkg/err"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongo: Unauthorized, AuthenticationFailed
var mongoPermissionCodes = []int{13, 18}

// postgres: insufficient_privilege, invalid_authorization_specification
var pgPermissionCodes = map[string]bool{"42501": true, "28000": true}

// classify convert a driver error into an errprocess kind. Already
// classified errors pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *errprocess.Error
	if errors.As(err, &classified) {
		return err
	}
	return errprocess.New(kindOf(err), op, err)
}

func kindOf(err error) errprocess.Kind {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, pgx.ErrNoRows), errors.Is(err, redis.Nil):
		return errprocess.NotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errprocess.NetworkUnavailable
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return errprocess.NetworkUnavailable
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range mongoPermissionCodes {
			if se.HasErrorCode(code) {
				return errprocess.PermissionDenied
			}
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgPermissionCodes[pgErr.Code] {
		return errprocess.PermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errprocess.NetworkUnavailable
	}
	if errors.Is(err, redis.ErrClosed) {
		return errprocess.NetworkUnavailable
	}
	return errprocess.Unknown
}
