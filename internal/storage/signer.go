// Package storage issues time-limited download links for objects kept in MinIO.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/imrishuroy/orderflow-reconciler/internal/aws"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

const serviceMinio = "minio"

// DefaultValidity is how long a download link stays usable.
const DefaultValidity = 7 * 24 * time.Hour

// MaxValidity is the SigV4 presign limit. S3 and MinIO reject links signed for longer.
const MaxValidity = 7 * 24 * time.Hour

// Signer presigns GET requests and rewrites the internal storage origin to the public proxy.
type Signer struct {
	presign    aws.PresignAPI
	bucket     string
	internal   string // host:port the presigner signs for
	publicHost string
	validity   time.Duration
}

// NewSigner returns a Signer. internalHost is the host:port of the storage server as seen by
// the presigner; publicHost is the proxy customers can reach over https. A validity of zero
// selects DefaultValidity and anything above MaxValidity is capped to it.
func NewSigner(presign aws.PresignAPI, bucket, internalHost, publicHost string, validity time.Duration) *Signer {
	if validity <= 0 {
		validity = DefaultValidity
	}
	if validity > MaxValidity {
		validity = MaxValidity
	}
	return &Signer{
		presign:    presign,
		bucket:     bucket,
		internal:   internalHost,
		publicHost: publicHost,
		validity:   validity,
	}
}

// Validity returns the signing window.
func (s *Signer) Validity() time.Duration { return s.validity }

// SignedURL returns an externally reachable link to objectName valid for the configured window.
func (s *Signer) SignedURL(ctx context.Context, objectName string) (string, error) {
	const op = "presign_get_object"
	if objectName == "" {
		return "", remote.DataError(serviceMinio, op, "product has no object name", remote.ErrNotFound)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectName,
	}, s3.WithPresignExpires(s.validity))
	if err != nil {
		return "", remote.TransportError(serviceMinio, op, err)
	}

	return s.rewrite(req.URL)
}

// rewrite swaps scheme://internal for https://publicHost, keeping path and signed query intact.
// URLs pointing elsewhere are returned untouched.
func (s *Signer) rewrite(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", remote.DataError(serviceMinio, "presign_get_object", fmt.Sprintf("unparseable presigned url %q", raw), err)
	}
	if s.publicHost == "" || u.Host != s.internal {
		return raw, nil
	}
	u.Scheme = "https"
	u.Host = s.publicHost
	return u.String(), nil
}
