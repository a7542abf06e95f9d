package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type row struct {
	SegmentID int64   `json:"segment_id"`
	Mean      float64 `json:"mean"`
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()
	data := []row{{SegmentID: 7, Mean: 0.5}}

	tests := []struct {
		name        string
		target      string
		accept      string
		contentType string
	}{
		{"default json", "/x", "", ContentTypeJSON},
		{"format param", "/x?format=msgpack", "", ContentTypeMsgPack},
		{"accept header", "/x", ContentTypeMsgPack, ContentTypeMsgPack},
		{"param beats header", "/x?format=json", ContentTypeMsgPack, ContentTypeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, f.WriteResponse(rec, req, http.StatusCreated, data))

			assert.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

			var got []row
			if tt.contentType == ContentTypeMsgPack {
				dec := msgpack.NewDecoder(rec.Body)
				dec.SetCustomStructTag("json")
				require.NoError(t, dec.Decode(&got))
			} else {
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			}
			assert.Equal(t, data, got)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	require.NoError(t, NewFormatter().WriteError(rec, req, http.StatusNotFound, "run not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}
