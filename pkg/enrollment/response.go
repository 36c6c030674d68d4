package enrollment

import (
	"errors"
	"fmt"

	"github.com/valyala/fastjson"
)

// Payload errors.
var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrInvalidPayload = errors.New("invalid enrollment response payload")
)

// Response is the body of an enr_resp message.
type Response struct {
	IsEnrolled         bool
	ScopeID            string
	ResultCode         int
	ExtendedResultCode int
}

var parserPool fastjson.ParserPool

// ParseResponse parses an enrollment response body. The body must be a JSON
// object with a boolean "isEnrolled"; "scopeId" is required when enrolled.
// "resultCode" and "extendedResultCode" are optional integers.
func ParseResponse(payload []byte) (Response, error) {
	var r Response
	if len(payload) == 0 {
		return r, ErrEmptyPayload
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if v.Type() != fastjson.TypeObject {
		return r, fmt.Errorf("%w: not an object", ErrInvalidPayload)
	}

	enrolled := v.Get("isEnrolled")
	if enrolled == nil {
		return r, fmt.Errorf("%w: missing isEnrolled", ErrInvalidPayload)
	}
	if r.IsEnrolled, err = enrolled.Bool(); err != nil {
		return r, fmt.Errorf("%w: isEnrolled: %v", ErrInvalidPayload, err)
	}

	if scope := v.Get("scopeId"); scope != nil && scope.Type() != fastjson.TypeNull {
		b, err := scope.StringBytes()
		if err != nil {
			return r, fmt.Errorf("%w: scopeId: %v", ErrInvalidPayload, err)
		}
		r.ScopeID = string(b)
	}
	if r.IsEnrolled && r.ScopeID == "" {
		return r, fmt.Errorf("%w: enrolled without scopeId", ErrInvalidPayload)
	}

	if r.ResultCode, err = optionalInt(v, "resultCode"); err != nil {
		return r, err
	}
	if r.ExtendedResultCode, err = optionalInt(v, "extendedResultCode"); err != nil {
		return r, err
	}
	return r, nil
}

func optionalInt(v *fastjson.Value, key string) (int, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return 0, nil
	}
	n, err := f.Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
	}
	return n, nil
}
