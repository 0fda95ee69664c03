// Package signing computes and checks the Token field of gateway requests
// and notifications.
//
// The token is the lowercase hex SHA-256 of the concatenated values of all
// top-level scalar fields plus Password (the secret key) and TerminalKey,
// ordered by field name.
package signing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FieldToken       = "Token"
	FieldTerminalKey = "TerminalKey"
	FieldPassword    = "Password"
)

type pair struct {
	key   string
	value string
}

// Sign returns the token for fields. Token is ignored, nested objects and
// arrays do not take part, and TerminalKey is added only when fields lacks it.
func Sign(fields map[string]any, terminalKey, secretKey string) string {
	pairs := make([]pair, 0, len(fields)+2)
	pairs = append(pairs, pair{FieldPassword, secretKey})

	if _, ok := fields[FieldTerminalKey]; !ok {
		pairs = append(pairs, pair{FieldTerminalKey, terminalKey})
	}

	for k, v := range fields {
		if k == FieldToken {
			continue
		}
		s, ok := scalar(v)
		if !ok {
			continue
		}
		pairs = append(pairs, pair{k, s})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.value)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether token matches the token computed over fields.
func Verify(token string, fields map[string]any, terminalKey, secretKey string) bool {
	if token == "" {
		return false
	}
	expected := Sign(fields, terminalKey, secretKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

// scalar renders v the way the gateway does. The second result is false for
// values that are left out of the token.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case json.RawMessage:
		return "", false
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case decimal.Decimal:
		return t.String(), true
	case fmt.Stringer:
		return t.String(), true
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return "", false
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return "", false
		}
		return scalar(rv.Elem().Interface())
	}
	return fmt.Sprint(v), true
}
