// Package staging makes document inputs available on the local filesystem.
//
// Local paths pass through untouched. s3://bucket/key URIs are downloaded
// into a temporary file with the aws-sdk-go-v2 transfer manager, and the
// caller receives a cleanup function that removes the copy.
package staging
