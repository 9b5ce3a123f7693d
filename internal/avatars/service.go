package avatars

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const defaultExtension = "bin"

// ObjectStore is the bucket storage avatars are written to.
type ObjectStore interface {
	Put(ctx context.Context, bucket, object, contentType string, body io.Reader) error
	PublicURL(bucket, object string) string
}

type profileWriter interface {
	SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error
}

// File is an uploaded avatar image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service stores profile photos and records their public URL on the profile row.
type Service interface {
	Upload(ctx context.Context, userID uuid.UUID, file File) (string, error)
}

type service struct {
	store    ObjectStore
	profiles profileWriter
	bucket   string
	now      func() time.Time
}

// NewService constructs an avatar service writing to bucket.
func NewService(store ObjectStore, profiles profileWriter, bucket string) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("avatar bucket required")
	}
	return &service{store: store, profiles: profiles, bucket: bucket, now: time.Now}, nil
}

// Upload writes the photo as <userID>-<unixMillis>.<ext>, replacing any object
// of the same name, and returns its public URL.
func (s *service) Upload(ctx context.Context, userID uuid.UUID, file File) (string, error) {
	if userID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if len(file.Data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}

	object := ObjectName(userID, file.Name, s.now())
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = mimetype.Detect(file.Data).String()
	}

	if err := s.store.Put(ctx, s.bucket, object, contentType, bytes.NewReader(file.Data)); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload avatar")
	}
	url := s.store.PublicURL(s.bucket, object)
	if err := s.profiles.SetAvatarURL(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

// ObjectName builds the avatar object key.
func ObjectName(userID uuid.UUID, fileName string, at time.Time) string {
	return fmt.Sprintf("%s-%d.%s", userID.String(), at.UnixMilli(), extension(fileName))
}

func extension(fileName string) string {
	base := path.Base(strings.TrimSpace(fileName))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return defaultExtension
	}
	var b strings.Builder
	for _, r := range base[idx+1:] {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	if b.Len() == 0 {
		return defaultExtension
	}
	return b.String()
}
