package repository

import (
	"context"
	"strings"
	"time"

	"chat_sync_service/pkg/database"
)

// MinIOMediaResolver presign object keys; absolute URLs pass through
type MinIOMediaResolver struct {
	client *database.MinIOClient
	expiry time.Duration
}

// NewMinIOMediaResolver create MinIOMediaResolver
func NewMinIOMediaResolver(client *database.MinIOClient, expiry time.Duration) *MinIOMediaResolver {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinIOMediaResolver{client: client, expiry: expiry}
}

// ResolveURL presigned GET url for ref
func (r *MinIOMediaResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if ref == "" || isAbsoluteURL(ref) {
		return ref, nil
	}
	url, err := r.client.PresignGetURL(ctx, strings.TrimPrefix(ref, "/"), r.expiry)
	return url, classify("resolve_media", err)
}

// PassthroughMediaResolver media refs are already URLs
type PassthroughMediaResolver struct{}

// ResolveURL returns ref
func (PassthroughMediaResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	return ref, nil
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
