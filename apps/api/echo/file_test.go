package echoapi_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core/file"
)

func Test_fileApi(t *testing.T) {
	f := setup(t)
	content := []byte("Evidence of progress\n")

	rec := f.upload(t, "/v1/files", f.student, "../evidence.txt", content)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var stored file.File
	decode(t, rec, &stored)
	assert.Len(t, stored.Code, 32)
	assert.Equal(t, "evidence.txt", stored.Filename)
	assert.Equal(t, f.student.ID, stored.OwnerID)
	assert.EqualValues(t, len(content), stored.Size)
	assert.Contains(t, stored.MimeType, "text/plain")

	t.Run("download", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/files/"+stored.Code, &f.teacher)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, content, rec.Body.Bytes())
		assert.Equal(t, `attachment; filename=evidence.txt`, rec.Header().Get(echo.HeaderContentDisposition))
		assert.Equal(t, stored.MimeType, rec.Header().Get(echo.HeaderContentType))
	})

	t.Run("too big", func(t *testing.T) {
		rec := f.upload(t, "/v1/files", f.student, "big.bin", bytes.Repeat([]byte{'x'}, 1<<20+1))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs["file"], file.ErrFileTooBig.Error())
	})

	path := "/v1/files/" + stored.Code
	f.run(t, []httpTest{
		{name: "anonymous", path: path, wantCode: http.StatusUnauthorized},
		{name: "malformed code", path: "/v1/files/nope", usr: &f.student, wantCode: http.StatusNotFound},
		{name: "not the owner", method: http.MethodDelete, path: path, usr: &f.teacher, wantCode: http.StatusForbidden},
		{name: "owner deletes", method: http.MethodDelete, path: path, usr: &f.student, wantCode: http.StatusNoContent},
		{name: "gone", path: path, usr: &f.student, wantCode: http.StatusNotFound},
	})
}
