package env

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
)

// DecodeSingle turns one secret payload into a fragment. JSON-family
// payloads must be a JSON object of scalar values; key-value payloads
// contribute their pairs directly. Keys are applied in ascending order so
// the first grammar or duplicate failure is deterministic.
func DecodeSingle(traits backend.Traits, payload backend.Payload) (*Fragment, error) {
	frag := NewFragment()
	switch traits.Family {
	case backend.FamilyKeyValue:
		if err := setSorted(frag, payload.Map, payload.Name); err != nil {
			return nil, err
		}
	default:
		obj, err := decodeObject(payload)
		if err != nil {
			return nil, err
		}
		if err := setSorted(frag, obj, payload.Name); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

// DecodePrefixed turns the payloads of a prefixed resolution into a
// fragment. Payloads are processed in ascending name order. For the JSON
// family each secret becomes one variable named after the secret with the
// prefix removed; for the key-value family the pair maps are merged with
// later secrets overwriting earlier ones.
func DecodePrefixed(traits backend.Traits, prefix string, payloads []backend.Payload) (*Fragment, error) {
	sorted := make([]backend.Payload, len(payloads))
	copy(sorted, payloads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	frag := NewFragment()
	switch traits.Family {
	case backend.FamilyKeyValue:
		merged := make(map[string]string)
		for _, p := range sorted {
			for k, v := range p.Map {
				merged[k] = v
			}
		}
		if err := setSorted(frag, merged, prefix); err != nil {
			return nil, err
		}
	default:
		for _, p := range sorted {
			key := strings.TrimPrefix(p.Name, prefix)
			if traits.DashToUnderscore {
				key = strings.ReplaceAll(key, "-", "_")
			}
			if err := frag.Set(key, string(p.Data)); err != nil {
				return nil, annotate(err, p.Name)
			}
		}
	}
	return frag, nil
}

// decodeObject parses a JSON-family payload into string values. The
// top-level document must be an object; scalar members are canonicalized
// (true/false, empty string for null, the decimal form for numbers) and
// nested arrays or objects are rejected.
func decodeObject(payload backend.Payload) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload.Data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, kverrors.DecodeError{
			Secret:  payload.Name,
			Message: "secret payload is not a JSON object",
			Err:     err,
		}
	}

	obj := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := canonicalValue(v)
		if err != nil {
			return nil, kverrors.DecodeError{
				Secret:  payload.Name,
				Key:     k,
				Message: err.Error(),
			}
		}
		obj[k] = s
	}
	return obj, nil
}

func canonicalValue(v interface{}) (string, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case bool:
		return strconv.FormatBool(value), nil
	case json.Number:
		return value.String(), nil
	case nil:
		return "", nil
	default:
		return "", errValueShape
	}
}

var errValueShape = errors.New("array and object values cannot become environment variables")

// setSorted inserts the pairs of m in ascending key order so that
// validation failures are reported deterministically.
func setSorted(frag *Fragment, m map[string]string, secret string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := frag.Set(k, m[k]); err != nil {
			return annotate(err, secret)
		}
	}
	return nil
}

func annotate(err error, secret string) error {
	if de, ok := err.(kverrors.DecodeError); ok && de.Secret == "" {
		de.Secret = secret
		return de
	}
	return err
}
