package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"verax/internal/logger"
)

// FirebaseUploader stores objects in the project's Firebase Storage bucket.
type FirebaseUploader struct {
	bucket     *gcs.BucketHandle
	bucketName string
	log        zerolog.Logger
}

// NewFirebaseUploader opens bucketName, or the app's default bucket when bucketName is empty.
func NewFirebaseUploader(ctx context.Context, app *firebase.App, bucketName string) (*FirebaseUploader, error) {
	const op = "NewFirebaseUploader"

	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create storage client: %w", op, err)
	}

	var bucket *gcs.BucketHandle
	if bucketName == "" {
		bucket, err = client.DefaultBucket()
	} else {
		bucket, err = client.Bucket(bucketName)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open bucket: %w", op, err)
	}

	attrs, err := bucket.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: bucket not accessible: %w", op, err)
	}

	return &FirebaseUploader{
		bucket:     bucket,
		bucketName: attrs.Name,
		log:        logger.WithComponent("storage"),
	}, nil
}

// Upload writes r to objectPath with a resumable upload and returns a token download URL.
func (u *FirebaseUploader) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (Object, error) {
	const op = "FirebaseUploader.Upload"

	token := uuid.NewString()
	w := u.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}

	size, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("%s: failed to write %s: %w", op, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("%s: failed to finalize %s: %w", op, objectPath, err)
	}

	u.log.Info().
		Str("path", objectPath).
		Int64("size", size).
		Msg("Uploaded object")

	return Object{
		Path:        objectPath,
		URL:         downloadURL(u.bucketName, objectPath, token),
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (u *FirebaseUploader) Delete(ctx context.Context, objectPath string) error {
	err := u.bucket.Object(objectPath).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
	}
	return err
}

func downloadURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectPath), token)
}
