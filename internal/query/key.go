// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package query

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrConfiguration reports a programming error in how a read was declared,
// such as a non-primitive key parameter. It is never retried.
var ErrConfiguration = errors.New("query configuration error")

// Key identifies one cached read. Two keys are equal when the operation and
// the canonical parameter encoding are equal, regardless of the order the
// parameters were supplied in. Key is comparable and usable as a map key.
type Key struct {
	Operation string
	Params    string
}

// BuildKey canonicalizes params into a Key. Nil values are dropped so an
// explicit nil and an omitted parameter produce the same key. Values must be
// strings, booleans, integers, finite floats or time.Time; anything else is
// rejected with ErrConfiguration. Integers of any width are equal, as are
// instants in different zones, but a time.Time and a string with the same
// text are different parameters.
func BuildKey(operation string, params map[string]any) (Key, error) {
	if operation == "" {
		return Key{}, fmt.Errorf("%w: empty operation name", ErrConfiguration)
	}

	canonical := make(map[string]any, len(params))
	for name, v := range params {
		if v == nil {
			continue
		}
		cv, err := canonicalValue(v)
		if err != nil {
			return Key{}, fmt.Errorf("%w: operation %q parameter %q: %s", ErrConfiguration, operation, name, err.Error())
		}
		canonical[name] = cv
	}

	// Map keys are emitted sorted, which makes the encoding order-independent.
	data, err := json.Marshal(canonical)
	if err != nil {
		return Key{}, fmt.Errorf("%w: operation %q: %s", ErrConfiguration, operation, err.Error())
	}
	return Key{Operation: operation, Params: string(data)}, nil
}

// MustBuildKey is BuildKey for statically known parameters. It panics on
// error.
func MustBuildKey(operation string, params map[string]any) Key {
	k, err := BuildKey(operation, params)
	if err != nil {
		panic(err)
	}
	return k
}

func canonicalValue(v any) (any, error) {
	switch t := v.(type) {
	case string, bool:
		return t, nil
	case time.Time:
		// Encoded as an object so a time never equals a string parameter
		// holding the same text.
		return timeParam{At: t.UTC().Format(time.RFC3339Nano)}, nil
	case float32:
		return finite(float64(t))
	case float64:
		return finite(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

type timeParam struct {
	At string `json:"$time"`
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

// String returns operation:hash, short enough for logs and labels.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Params))
	return fmt.Sprintf("%s:%x", k.Operation, sum[:8])
}

// flightKey is the singleflight group key of one flight. It uses the full
// encoding rather than the hash, and seq keeps flights of the same key
// apart.
func (k Key) flightKey(seq uint64) string {
	return k.Operation + "\x00" + k.Params + "\x00" + strconv.FormatUint(seq, 10)
}
