package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/userhub/userhub/internal/storage"
)

func multipartRegisterRequest(t *testing.T, fields map[string]string, fileName, fileType string, fileBody []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="profileImage"; filename="`+fileName+`"`)
		hdr.Set("Content-Type", fileType)
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(fileBody)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestRegisterWithProfileImage(t *testing.T) {
	e := newTestEcho()
	store := newMemStore()

	disk, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	h := newAuthHandler(store)
	h.Files = disk

	req := multipartRegisterRequest(t, registerPayload(), "avatar.png", "image/png", []byte("png-bytes"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	user, err := store.FindByIdentifier(t.Context(), "a@x.com")
	require.NoError(t, err)
	require.Contains(t, user.ProfileImage, "/uploads/")
	require.Contains(t, user.ProfileImage, "avatar.png")
}

func TestRegisterRejectsNonImage(t *testing.T) {
	e := newTestEcho()
	store := newMemStore()

	disk, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	h := newAuthHandler(store)
	h.Files = disk

	req := multipartRegisterRequest(t, registerPayload(), "notes.txt", "text/plain", []byte("plain text"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)

	// nothing stored
	_, err = store.FindByIdentifier(t.Context(), "a@x.com")
	require.Error(t, err)
}

func TestRegisterRejectsOversizeImage(t *testing.T) {
	e := newTestEcho()
	store := newMemStore()

	disk, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	h := newAuthHandler(store)
	h.Files = disk

	big := make([]byte, maxUploadSize+1)
	req := multipartRegisterRequest(t, registerPayload(), "huge.png", "image/png", big)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}
