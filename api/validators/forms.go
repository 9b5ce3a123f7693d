package validators

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

// MaxAvatarBytes caps profile photo uploads.
const MaxAvatarBytes = 2 << 20

const (
	msgSelectImage      = "Please select an image file"
	msgImageTooLarge    = "Image size must be less than 2MB"
	msgPasswordTooShort = "Password must be at least 6 characters"
	msgPasswordMismatch = "Passwords do not match"
)

// Upload is a validated multipart file.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadImageUpload reads the named multipart field and checks that it is an
// image no larger than maxBytes. The content type is sniffed from the bytes.
func ReadImageUpload(r *http.Request, field string, maxBytes int64) (Upload, error) {
	// multipart overhead on top of the file itself
	if err := r.ParseMultipartForm(maxBytes + 1<<20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Upload{}, pkgerrors.New(pkgerrors.CodeValidation, msgImageTooLarge)
		}
		return Upload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgSelectImage)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return Upload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgSelectImage)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return Upload{}, pkgerrors.New(pkgerrors.CodeValidation, msgImageTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return Upload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msgSelectImage)
	}
	if int64(len(data)) > maxBytes {
		return Upload{}, pkgerrors.New(pkgerrors.CodeValidation, msgImageTooLarge)
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return Upload{}, pkgerrors.New(pkgerrors.CodeValidation, msgSelectImage).
			WithDetails(map[string]any{"content_type": detected.String()})
	}
	return Upload{Name: header.Filename, ContentType: detected.String(), Data: data}, nil
}

// CheckNewPassword applies the profile page rules for a password change.
func CheckNewPassword(password, confirm string) error {
	if password != confirm {
		return pkgerrors.New(pkgerrors.CodeValidation, msgPasswordMismatch)
	}
	if len(password) < 6 {
		return pkgerrors.New(pkgerrors.CodeValidation, msgPasswordTooShort)
	}
	return nil
}
