package sdk

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// Accepted timestamp layouts, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses the date formats the backend emits: RFC 3339 with or
// without fractional seconds, a zone-less timestamp (read as UTC), or a bare
// calendar date at UTC midnight.
//
// Example:
//
//	t, _ := sdk.ParseTimestamp("2024-01-15")
//	// t == time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var timeType = reflect.TypeOf(time.Time{})

// timeExtension swaps the decoder of time.Time for one that understands
// every layout in timestampLayouts.
type timeExtension struct {
	jsoniter.DummyExtension
}

func (*timeExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	if typ.Type1() == timeType {
		return timeDecoder{}
	}
	return nil
}

type timeDecoder struct{}

func (timeDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	if iter.ReadNil() {
		return
	}
	s := iter.ReadString()
	if iter.Error != nil {
		return
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		iter.ReportError("decode time.Time", err.Error())
		return
	}
	*(*time.Time)(ptr) = t
}

// codec mirrors encoding/json behaviour, plus flexible time decoding.
var codec = func() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&timeExtension{})
	return api
}()

func marshalJSON(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

// unmarshalJSON decodes data into dest, wrapping failures in *DecodingError.
func unmarshalJSON(data []byte, dest interface{}) error {
	if err := codec.Unmarshal(data, dest); err != nil {
		return &DecodingError{Err: err, Body: data}
	}
	return nil
}
