package tailer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MalformedBatchError reports records dropped by Decoder.Decode. Lines from
// the well-formed records of the same chunk are still returned.
type MalformedBatchError struct {
	Dropped int
	Err     error // first decode error
}

func (e *MalformedBatchError) Error() string {
	return fmt.Sprintf("dropped %d malformed record(s): %v", e.Dropped, e.Err)
}

func (e *MalformedBatchError) Unwrap() error {
	return e.Err
}

// Decoder turns helper stdout chunks back into lines. Chunk boundaries need
// not align with records; an incomplete trailing record is kept until the
// rest of it arrives. Not safe for concurrent use.
type Decoder struct {
	partial []byte
}

// Decode returns the lines of every complete record in partial+chunk, in
// order. The error, if any, is a *MalformedBatchError.
func (d *Decoder) Decode(chunk []byte) ([]string, error) {
	buf := append(d.partial, chunk...)
	d.partial = nil

	var (
		lines   []string
		dropped int
		first   error
	)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		rec := bytes.TrimSpace(buf[:i])
		buf = buf[i+1:]
		if len(rec) == 0 {
			continue
		}
		var batch []string
		if err := json.Unmarshal(rec, &batch); err != nil {
			dropped++
			if first == nil {
				first = err
			}
			continue
		}
		lines = append(lines, batch...)
	}

	if len(buf) > maxPartial {
		dropped++
		if first == nil {
			first = fmt.Errorf("unterminated record exceeds %d bytes", maxPartial)
		}
		buf = nil
	}
	if len(buf) > 0 {
		d.partial = append([]byte(nil), buf...)
	}

	if dropped > 0 {
		return lines, &MalformedBatchError{Dropped: dropped, Err: first}
	}
	return lines, nil
}

// Flush decodes a final record left without its newline when the helper
// exited.
func (d *Decoder) Flush() ([]string, error) {
	if len(bytes.TrimSpace(d.partial)) == 0 {
		d.partial = nil
		return nil, nil
	}
	return d.Decode([]byte{'\n'})
}
