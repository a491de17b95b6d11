// Package s3util stores generated images in S3 and reads input images back.
package s3util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/imaging"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=gemini-image-orchestrator"

// DefaultURLExpiry is how long presigned GET URLs stay valid.
const DefaultURLExpiry = time.Hour

// maxInputImageBytes bounds input images read back from S3.
const maxInputImageBytes = 20 << 20

// API is the subset of *s3.Client used here.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// StoredImage locates an uploaded image and its preview.
type StoredImage struct {
	Key        string `json:"key"`
	URL        string `json:"url,omitempty"`
	PreviewKey string `json:"previewKey,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Bytes      int    `json:"bytes"`
}

// Sink uploads generated images to one bucket.
type Sink struct {
	client    API
	presigner Presigner
	bucket    string
	expiry    time.Duration
}

// NewSink creates a Sink. presigner may be nil, in which case no URLs are
// returned.
func NewSink(client API, presigner Presigner, bucket string) *Sink {
	return &Sink{client: client, presigner: presigner, bucket: bucket, expiry: DefaultURLExpiry}
}

// Bucket returns the bucket name.
func (s *Sink) Bucket() string {
	return s.bucket
}

// Store uploads img under <prefix>/<name><ext> plus a JPEG preview under
// <prefix>/previews/<name>.jpg. A failed preview is logged and skipped.
func (s *Sink) Store(ctx context.Context, prefix, name string, img *domain.GeneratedImage) (*StoredImage, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("no image data to store")
	}

	key := path.Join(prefix, name+imaging.Extension(img.MIMEType))
	meta := map[string]string{
		"model":        img.Metadata.Model,
		"aspect-ratio": img.Metadata.AspectRatio,
	}
	if err := s.put(ctx, key, img.MIMEType, img.Data, meta); err != nil {
		return nil, err
	}
	out := &StoredImage{Key: key, Bytes: len(img.Data)}

	if preview, err := imaging.Preview(img.Data, imaging.DefaultPreviewMaxDimension); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Skipping preview upload")
	} else {
		previewKey := path.Join(prefix, "previews", name+".jpg")
		if err := s.put(ctx, previewKey, "image/jpeg", preview, nil); err != nil {
			log.Warn().Err(err).Str("key", previewKey).Msg("Preview upload failed")
		} else {
			out.PreviewKey = previewKey
		}
	}

	if s.presigner != nil {
		url, err := s.PresignedURL(ctx, key)
		if err != nil {
			return nil, err
		}
		out.URL = url
		if out.PreviewKey != "" {
			if out.PreviewURL, err = s.PresignedURL(ctx, out.PreviewKey); err != nil {
				return nil, err
			}
		}
	}

	log.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("bytes", len(img.Data)).
		Msg("Image uploaded to S3")
	return out, nil
}

func (s *Sink) put(ctx context.Context, key, contentType string, data []byte, meta map[string]string) error {
	tagging := projectTag
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		Metadata:    meta,
		Tagging:     &tagging,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

// PresignedURL creates a pre-signed GET URL for key.
func (s *Sink) PresignedURL(ctx context.Context, key string) (string, error) {
	if s.presigner == nil {
		return "", errors.New("no presigner configured")
	}
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// Load reads an input image from the bucket. The MIME type comes from the
// object's Content-Type, or from the decoded header when that is missing.
func (s *Sink) Load(ctx context.Context, key string) (*domain.ImageData, error) {
	key = strings.TrimPrefix(key, "/")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, maxInputImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) > maxInputImageBytes {
		return nil, fmt.Errorf("input image %s exceeds %d bytes", key, maxInputImageBytes)
	}

	mimeType := ""
	if result.ContentType != nil {
		mimeType = *result.ContentType
	}
	if !strings.HasPrefix(mimeType, "image/") {
		_, _, format, err := imaging.Dimensions(data)
		if err != nil {
			return nil, fmt.Errorf("input %s is not an image: %w", key, err)
		}
		mimeType = imaging.MIMEType(format)
	}
	return &domain.ImageData{Data: data, MIMEType: mimeType}, nil
}
