// Package storage keeps progress photo blobs and hands back the reference
// stored in a plant record.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/digkill/PlantDoctor/internal/config"
)

// ImageStore persists an image and returns a reference a client can display:
// a URL or a data URI.
type ImageStore interface {
	Put(ctx context.Context, owner string, data []byte, contentType string) (string, error)
}

// New returns the S3 store when a bucket is configured and the inline store
// otherwise.
func New(cfg config.Config) (ImageStore, error) {
	if !cfg.S3Enabled() {
		return InlineStore{}, nil
	}
	return NewS3Store(S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
}

// InlineStore embeds the image in the reference itself as a data URI.
type InlineStore struct{}

func (InlineStore) Put(_ context.Context, _ string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no image data")
	}
	return DataURI(data, ContentType(data, contentType)), nil
}

func DataURI(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes a base64 data URI. ok is false for anything else, such
// as an object storage URL.
func ParseDataURI(ref string) (data []byte, contentType string, ok bool) {
	rest, found := strings.CutPrefix(ref, "data:")
	if !found {
		return nil, "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", false
	}
	contentType, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	return data, contentType, true
}

// ContentType trusts a declared image type and sniffs the bytes otherwise.
func ContentType(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
