package validators

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadImageUploadAcceptsPNG(t *testing.T) {
	req := multipartRequest(t, "file", "me.png", pngHeader)

	upload, err := ReadImageUpload(req, "file", MaxAvatarBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.ContentType != "image/png" || upload.Name != "me.png" {
		t.Fatalf("unexpected upload %+v", upload)
	}
}

func TestReadImageUploadRejectsText(t *testing.T) {
	req := multipartRequest(t, "file", "notes.png", []byte("hello there"))

	_, err := ReadImageUpload(req, "file", MaxAvatarBytes)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation || pkgerrors.MessageOr(err, "") != msgSelectImage {
		t.Fatalf("expected select-image validation error, got %v", err)
	}
}

func TestReadImageUploadRejectsLargeFile(t *testing.T) {
	data := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	req := multipartRequest(t, "file", "big.png", data)

	_, err := ReadImageUpload(req, "file", 32)
	if pkgerrors.MessageOr(err, "") != msgImageTooLarge {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestReadImageUploadMissingField(t *testing.T) {
	req := multipartRequest(t, "other", "me.png", pngHeader)

	if _, err := ReadImageUpload(req, "file", MaxAvatarBytes); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestCheckNewPassword(t *testing.T) {
	cases := map[string]struct {
		password, confirm, want string
	}{
		"mismatch": {"secret1", "secret2", msgPasswordMismatch},
		"short":    {"abc", "abc", msgPasswordTooShort},
		"ok":       {"secret1", "secret1", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := CheckNewPassword(tc.password, tc.confirm)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if pkgerrors.MessageOr(err, "") != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}
