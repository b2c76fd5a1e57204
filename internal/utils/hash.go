package utils

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// PaymentReferenceLength is the number of hex characters kept from the
// (operationId, movementId) digest. 64 bits of keccak output; collisions are
// not detected anywhere downstream.
const PaymentReferenceLength = 16

// StructuralHash returns the hex encoded keccak256 digest of a canonical
// encoding of v.
//
// The encoding is order independent for maps (keys are sorted) and type
// insensitive for scalars: 100, int64(100), 100.0, json.Number("100") and
// "100" all encode the same way. Slices keep their order. time.Time values are
// encoded as UTC RFC3339Nano.
func StructuralHash(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, reflect.ValueOf(v)); err != nil {
		return "", err
	}
	return hex.EncodeToString(crypto.Keccak256(buf.Bytes())), nil
}

// PaymentReference derives the payment reference of a cash movement
func PaymentReference(operationID, movementID string) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeScalar(&buf, "movementId")
	writeScalar(&buf, movementID)
	writeScalar(&buf, "operationId")
	writeScalar(&buf, operationID)
	buf.WriteByte('}')
	return hex.EncodeToString(crypto.Keccak256(buf.Bytes()))[:PaymentReferenceLength]
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	bigIntPtrType = reflect.TypeOf((*big.Int)(nil))
	jsonNumType   = reflect.TypeOf(json.Number(""))
)

// writeScalar appends a length prefixed scalar so that adjacent values can
// never be confused with each other
func writeScalar(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(s)
}

func encodeCanonical(buf *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		buf.WriteByte('~')
		return nil
	}

	switch v.Type() {
	case timeType:
		writeScalar(buf, v.Interface().(time.Time).UTC().Format(time.RFC3339Nano))
		return nil
	case bigIntPtrType:
		if v.IsNil() {
			buf.WriteByte('~')
			return nil
		}
		writeScalar(buf, v.Interface().(*big.Int).String())
		return nil
	case jsonNumType:
		return encodeNumberString(buf, v.String())
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			buf.WriteByte('~')
			return nil
		}
		return encodeCanonical(buf, v.Elem())
	case reflect.String:
		writeScalar(buf, v.String())
	case reflect.Bool:
		writeScalar(buf, strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeScalar(buf, strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		writeScalar(buf, strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		writeScalar(buf, strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if err := encodeCanonical(buf, v.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", v.Type().Key())
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for _, k := range keys {
			writeScalar(buf, k)
			if err := encodeCanonical(buf, v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key()))); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %s", v.Type())
	}
	return nil
}

// encodeNumberString normalizes JSON numbers so that "100" and "100.0" agree
// with their native counterparts
func encodeNumberString(buf *bytes.Buffer, s string) error {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		writeScalar(buf, strconv.FormatInt(i, 10))
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	writeScalar(buf, strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}
