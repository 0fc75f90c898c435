package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/fedcycle/pkg/api"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeError(t *testing.T) {
	cases := []struct {
		desc   string
		err    error
		status int
	}{
		{desc: "validation error", err: errors.Join(apiutil.ErrValidation, apiutil.ErrMissingID), status: http.StatusBadRequest},
		{desc: "malformed diff", err: fmt.Errorf("%w: bad shape", pkgerrors.ErrMalformedDiff), status: http.StatusBadRequest},
		{desc: "unauthorized", err: pkgerrors.ErrUnauthorized, status: http.StatusUnauthorized},
		{desc: "not found", err: fmt.Errorf("%w: model", pkgerrors.ErrNotFound), status: http.StatusNotFound},
		{desc: "conflict", err: pkgerrors.ErrConflict, status: http.StatusConflict},
		{desc: "entity exists", err: pkgerrors.ErrEntityExists, status: http.StatusConflict},
		{desc: "transient", err: pkgerrors.ErrTransient, status: http.StatusServiceUnavailable},
		{desc: "fatal", err: pkgerrors.ErrFatal, status: http.StatusInternalServerError},
		{desc: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := httptest.NewRecorder()
			api.EncodeError(context.Background(), tc.err, rec)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, api.ContentType, rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}

type binary struct{}

func (binary) Code() int                   { return http.StatusOK }
func (binary) Headers() map[string]string { return map[string]string{"X-Checkpoint": "2"} }
func (binary) Empty() bool                 { return false }
func (binary) Body() []byte                { return []byte{1, 2, 3} }

func TestEncodeBinaryResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, api.EncodeResponse(context.Background(), rec, binary{}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.BinaryContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Checkpoint"))
	assert.Equal(t, []byte{1, 2, 3}, rec.Body.Bytes())
}
