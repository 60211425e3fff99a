// Package wsstore serves a syncstore.Hub over websocket connections and
// provides the matching syncstore.Store client.
package wsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bloops-games/partyroom/internal/syncstore"
)

const (
	opGet              = "get"
	opUpdate           = "update"
	opCommit           = "commit"
	opCompareAndDelete = "cad"
	opSubscribe        = "sub"
	opUnsubscribe      = "unsub"
	opOnDisconnect     = "ondisconnect"
	opCancelDisconnect = "canceldisconnect"
)

// request is sent by the client. Sub is chosen by the client so events can
// arrive before the subscribe reply.
type request struct {
	ID      uint64                 `json:"id"`
	Op      string                 `json:"op"`
	Path    string                 `json:"path"`
	Values  map[string]interface{} `json:"values,omitempty"`
	Version uint64                 `json:"version,omitempty"`
	Sub     uint64                 `json:"sub,omitempty"`
}

// frame is sent by the server: a reply when ID is set, a subscription event
// when Sub is set.
type frame struct {
	ID       uint64          `json:"id,omitempty"`
	Sub      uint64          `json:"sub,omitempty"`
	Error    string          `json:"error,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

var errorCodes = map[error]string{
	syncstore.ErrConflict: "conflict",
	syncstore.ErrClosed:   "closed",
	syncstore.ErrNotFound: "not_found",
	syncstore.ErrBadPath:  "bad_path",
}

func encodeError(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return err.Error()
}

func decodeError(s string) error {
	if s == "" {
		return nil
	}
	for sentinel, code := range errorCodes {
		if s == code {
			return sentinel
		}
	}
	return fmt.Errorf("remote: %s", s)
}

var buffers = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// encode marshals v into a fresh slice using a pooled buffer.
func encode(v interface{}) ([]byte, error) {
	buf := buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		buffers.Put(buf)
	}()

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
