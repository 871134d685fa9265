// Package fhir extracts the canonical URL of FHIR R4 resources.
package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/gofhir/fhir/r4"
	"github.com/tidwall/gjson"
)

var (
	// ErrMissingURL is returned when a resource carries no canonical url.
	ErrMissingURL = errors.New("resource has no canonical url")
	// ErrMalformed is returned when a resource cannot be decoded as its declared type.
	ErrMalformed = errors.New("malformed resource")
	// ErrUnknownType is returned for a resourceType that is not part of FHIR R4.
	ErrUnknownType = errors.New("unknown resource type")
)

// Decode builds the R4 resource named by resourceType from raw.
func Decode(resourceType string, raw []byte) (r4.Resource, error) {
	res, err := r4.NewResource(resourceType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resourceType, ErrUnknownType)
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", resourceType, err, ErrMalformed)
	}
	return res, nil
}

// CanonicalURL decodes raw as resourceType and returns its url element.
// Types without a url element, such as Patient, yield ErrMissingURL even
// when the document carries a top-level url.
func CanonicalURL(resourceType string, raw []byte) (string, error) {
	res, err := Decode(resourceType, raw)
	if err != nil {
		return "", err
	}
	u := urlOf(res)
	if u == nil || *u == "" {
		return "", ErrMissingURL
	}
	return *u, nil
}

var stringPtr = reflect.TypeOf((*string)(nil))

// urlOf reads the Url field shared by the generated canonical resource structs.
func urlOf(res r4.Resource) *string {
	v := reflect.ValueOf(res)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	f := v.Elem().FieldByName("Url")
	if !f.IsValid() || f.Type() != stringPtr || f.IsNil() {
		return nil
	}
	return f.Interface().(*string)
}

// ResourceType returns the top-level resourceType of a JSON document and
// whether it is present as a string.
func ResourceType(raw []byte) (string, bool) {
	res := gjson.GetBytes(raw, "resourceType")
	if res.Type != gjson.String {
		return "", false
	}
	return res.Str, true
}
