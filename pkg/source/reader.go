// Package source reads log records from newline delimited JSON streams.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mosajjal/logrelay/pkg/models"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

// MaxLineSize bounds a single record
const MaxLineSize = 4 * 1024 * 1024

// ErrNotObject is reported for lines that are valid JSON but not objects
var ErrNotObject = errors.New("record is not a JSON object")

// Reader yields one record per line. Blank lines are skipped and malformed
// lines are reported to OnMalformed, then skipped.
type Reader struct {
	scanner *bufio.Scanner
	parser  fastjson.Parser
	line    int

	// OnMalformed is called for every line that could not be parsed
	OnMalformed func(line int, err error)
}

// NewReader creates a Reader on r
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader{
		scanner: sc,
		OnMalformed: func(line int, err error) {
			log.WithError(err).WithField("line", line).Warn("Skipping malformed record")
		},
	}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (models.Record, error) {
	for r.scanner.Scan() {
		r.line++
		b := bytes.TrimSpace(r.scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		rec, err := r.Parse(b)
		if err != nil {
			if r.OnMalformed != nil {
				r.OnMalformed(r.line, err)
			}
			continue
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return nil, io.EOF
}

// Parse decodes one JSON object into a record. Numbers become float64.
// Not safe for concurrent use, the parser is reused.
func (r *Reader) Parse(b []byte) (models.Record, error) {
	v, err := r.parser.ParseBytes(b)
	if err != nil {
		return nil, err
	}
	if v.Type() != fastjson.TypeObject {
		return nil, ErrNotObject
	}
	m, err := convert(v)
	if err != nil {
		return nil, err
	}
	return models.Record(m.(map[string]interface{})), nil
}

// ParseRecord decodes one JSON object with a throwaway parser
func ParseRecord(b []byte) (models.Record, error) {
	var r Reader
	return r.Parse(b)
}

func convert(v *fastjson.Value) (interface{}, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, nil
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeNumber:
		return v.Float64()
	case fastjson.TypeString:
		s, err := v.StringBytes()
		if err != nil {
			return nil, err
		}
		return string(s), nil
	case fastjson.TypeArray:
		arr, err := v.Array()
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, 0, len(arr))
		for _, item := range arr {
			c, err := convert(item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, obj.Len())
		var verr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if verr != nil {
				return
			}
			c, err := convert(item)
			if err != nil {
				verr = err
				return
			}
			out[string(key)] = c
		})
		return out, verr
	}
	return nil, fmt.Errorf("unsupported JSON type %s", v.Type())
}
