package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
)

// Uploader writes an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, object string, data []byte, contentType string) (string, error)
}

// GCSUploader uploads to a Cloud Storage bucket as public-read objects
// that clients must revalidate on every load.
type GCSUploader struct {
	bucket *storage.BucketHandle
	name   string
}

// NewGCSUploader wraps a bucket handle; name is the bucket name used in
// public URLs.
func NewGCSUploader(bucket *storage.BucketHandle, name string) *GCSUploader {
	return &GCSUploader{bucket: bucket, name: name}
}

func (u *GCSUploader) Upload(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	w := u.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=0"
	w.PredefinedACL = "publicRead"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return PublicURL(u.name, object), nil
}

// PublicURL is the anonymous download URL of object in bucket.
func PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: object}).EscapedPath()
}

// SlotPhotoObject names the object holding a slot's current photo.
func SlotPhotoObject(mid, sid string) string {
	return fmt.Sprintf("machines/%s/current_slot_%s.jpg", mid, sid)
}

// Photos re-encodes and stores slot photos.
type Photos struct {
	uploader Uploader
}

// NewPhotos creates a photo store on top of u.
func NewPhotos(u Uploader) *Photos {
	return &Photos{uploader: u}
}

// StoreSlotPhoto replaces the photo of slot sid on machine mid and returns
// its public URL.
func (p *Photos) StoreSlotPhoto(ctx context.Context, mid, sid string, r io.Reader) (string, error) {
	data, err := PrepareJPEG(r)
	if err != nil {
		return "", err
	}
	return p.uploader.Upload(ctx, SlotPhotoObject(mid, sid), data, "image/jpeg")
}
