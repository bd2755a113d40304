package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vocdoni/ticketvote/log"
)

// maxRequestBody bounds the size of POST bodies.
const maxRequestBody = 1 << 20

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(jdata, '\n')); err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
}

// httpWriteBinary streams an in-memory byte slice as a response.
func httpWriteBinary(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Warnw("failed to write binary response", "error", err)
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// decodeBody decodes a bounded JSON body into out.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(out)
}
