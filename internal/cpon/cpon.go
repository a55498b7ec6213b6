// Package cpon implements the CPON human-readable text codec for the SHV
// value model: the same value set as ChainPack, rendered as a JSON-like
// syntax extended with uint/decimal/datetime/blob/imap literals and a
// leading <meta>value form.
package cpon

import (
	"bytes"
	"fmt"

	"shv.dev/broker/internal/rtypes"
)

// Marshal renders v as its canonical CPON text.
func Marshal(v rtypes.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a single CPON value from b.
func Unmarshal(b []byte) (rtypes.Value, error) {
	return NewDecoder(bytes.NewReader(b)).Decode()
}

// ErrSyntax reports a malformed CPON document.
type ErrSyntax struct {
	Pos int
	Msg string
}

func (e *ErrSyntax) Error() string {
	return fmt.Sprintf("cpon: syntax error at byte %d: %s", e.Pos, e.Msg)
}
