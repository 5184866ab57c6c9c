package httpproxy

import (
	"bytes"
	"encoding/json"
	"io"
)

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func newBodyReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
