package staging

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Scheme is the URI prefix handled by the S3 stager.
const Scheme = "s3://"

// ErrInvalidURI is returned for malformed s3:// URIs.
var ErrInvalidURI = errors.New("invalid s3 uri")

// Object addresses a single S3 object.
type Object struct {
	Bucket string
	Key    string
}

func (o Object) String() string {
	return Scheme + o.Bucket + "/" + o.Key
}

// Filename is the last path element of the key.
func (o Object) Filename() string {
	return path.Base(o.Key)
}

// IsRemote reports whether p names an S3 object.
func IsRemote(p string) bool {
	return strings.HasPrefix(strings.ToLower(p), Scheme)
}

// ParseURI splits an s3://bucket/key URI.
func ParseURI(uri string) (Object, error) {
	if !IsRemote(uri) {
		return Object{}, fmt.Errorf("%w: %q has no %s prefix", ErrInvalidURI, uri, Scheme)
	}
	rest := uri[len(Scheme):]
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" {
		return Object{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return Object{}, fmt.Errorf("%w: %q does not name an object", ErrInvalidURI, uri)
	}
	return Object{Bucket: bucket, Key: key}, nil
}
