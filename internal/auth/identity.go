package auth

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Credential is the user-supplied registration/login payload, e.g.
// {"name":"alice","secret":"hunter2"}. Its fields are opaque to this
// package: the whole object is the identity claim.
type Credential map[string]any

// IdentityKey is the account-store lookup key derived from a Credential:
// 64 lowercase hex characters (BLAKE3-256).
type IdentityKey string

// maxDepth bounds how deeply a credential may nest. A cyclic structure
// never bottoms out, so it trips this limit instead of recursing forever.
const maxDepth = 64

// maxExponent bounds the decimal exponent of a number, so "1e999999999"
// cannot make the encoder build a billion-digit integer.
const maxExponent = 1000

// ProviderField is the top-level credential field that marks an identity
// vouched for by an external provider (see GitHubUser.Credential). Clients
// may not submit it themselves.
const ProviderField = "provider"

// ErrEncoding is the category matched by every *EncodingError.
var ErrEncoding = errors.New("auth: credential cannot be canonically serialized")

// EncodingError reports a credential that has no canonical serialization:
// a non-finite number, an unsupported type, or a structure too deep
// (or cyclic) to walk.
type EncodingError struct {
	Path   string // JSON-pointer-ish location of the offending value
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("auth: encoding credential: %s", e.Reason)
	}
	return fmt.Sprintf("auth: encoding credential at %s: %s", e.Path, e.Reason)
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// canonicalEnc is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, shortest encodings, no
// indefinite-length items. Equal credentials always produce equal bytes.
var canonicalEnc cbor.EncMode

func init() {
	var err error
	canonicalEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("auth: CBOR encoder initialization failed: " + err.Error())
	}
}

// DeriveKey maps a credential to its IdentityKey.
//
// Canonical form: a number is its exact decimal value (so 1, 1.0 and 1e0
// agree, while 9007199254740992 and 9007199254740993 do not), map keys are
// sorted by the CBOR encoder, and the encoded bytes are hashed with
// BLAKE3-256. The hash is one-way; the key reveals nothing
// about the credential.
//
// Returns an *EncodingError if the credential contains NaN, ±Inf, a number
// with an exponent beyond ±1000, a non-JSON type, or nesting deeper than
// 64 levels.
func DeriveKey(cred Credential) (IdentityKey, error) {
	data, err := canonicalBytes(cred)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return IdentityKey(hex.EncodeToString(sum[:])), nil
}

func canonicalBytes(cred Credential) ([]byte, error) {
	norm, err := normalize(map[string]any(cred))
	if err != nil {
		return nil, err
	}
	data, err := canonicalEnc.Marshal(norm)
	if err != nil {
		return nil, &EncodingError{Reason: err.Error()}
	}
	return data, nil
}

// normalize returns a copy of the credential restricted to the JSON data
// model: maps with string keys, slices, strings, bools, nil and numbers.
// Every number becomes a decimal, whatever Go type carried it.
func normalize(cred map[string]any) (map[string]any, error) {
	v, err := normalizeValue(cred, "", 0)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

func normalizeValue(v any, path string, depth int) (any, error) {
	if depth > maxDepth {
		return nil, &EncodingError{Path: path, Reason: "nesting too deep or cyclic"}
	}

	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		return parseDecimal(string(val), path)
	case float64:
		return floatDecimal(val, 64, path)
	case float32:
		return floatDecimal(float64(val), 32, path)
	case int, int8, int16, int32, int64:
		return parseDecimal(strconv.FormatInt(reflect.ValueOf(val).Int(), 10), path)
	case uint, uint8, uint16, uint32, uint64:
		return parseDecimal(strconv.FormatUint(reflect.ValueOf(val).Uint(), 10), path)
	case decimal:
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalizeValue(item, path+"/"+k, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case Credential:
		return normalizeValue(map[string]any(val), path, depth)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := normalizeValue(item, fmt.Sprintf("%s/%d", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// floatDecimal reads a float as the shortest decimal that round-trips to
// it, the same text encoding/json writes for it.
func floatDecimal(f float64, bits int, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodingError{Path: path, Reason: "non-finite number"}
	}
	return parseDecimal(strconv.FormatFloat(f, 'g', -1, bits), path)
}

// decimal is a number of a normalized credential, kept exactly.
//
// It encodes as a CBOR integer when whole and as a decimal fraction
// (tag 4, RFC 8949 §3.4.4) otherwise, and as plain decimal JSON text
// without an exponent.
type decimal struct {
	r *big.Rat
}

func parseDecimal(s string, path string) (decimal, error) {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) || !json.Valid([]byte(s)) {
		return decimal{}, &EncodingError{Path: path, Reason: fmt.Sprintf("invalid number %q", s)}
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return decimal{}, &EncodingError{Path: path, Reason: fmt.Sprintf("number %q out of range", s)}
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return decimal{}, &EncodingError{Path: path, Reason: fmt.Sprintf("invalid number %q", s)}
	}
	return decimal{r: r}, nil
}

// scale returns the number of fractional digits d needs: its denominator
// is 2^a * 5^b, and max(a, b) digits represent it exactly.
func (d decimal) scale() int {
	den := new(big.Int).Set(d.r.Denom())
	var twos, fives int
	two, five, rem := big.NewInt(2), big.NewInt(5), new(big.Int)
	for {
		q, m := new(big.Int).QuoRem(den, two, rem)
		if m.Sign() != 0 {
			break
		}
		den, twos = q, twos+1
	}
	for {
		q, m := new(big.Int).QuoRem(den, five, rem)
		if m.Sign() != 0 {
			break
		}
		den, fives = q, fives+1
	}
	return max(twos, fives)
}

// String is the canonical text: digits, an optional sign and an optional
// fraction without trailing zeros.
func (d decimal) String() string {
	if d.r.IsInt() {
		return d.r.Num().String()
	}
	return d.r.FloatString(d.scale())
}

func (d decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d decimal) MarshalCBOR() ([]byte, error) {
	if d.r.IsInt() {
		return canonicalEnc.Marshal(d.r.Num())
	}
	scale := d.scale()
	mant := new(big.Int).Mul(d.r.Num(), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil))
	mant.Quo(mant, d.r.Denom())
	return canonicalEnc.Marshal(cbor.Tag{Number: 4, Content: []any{-scale, mant}})
}

// float returns d as a float64 if that loses nothing: the float's
// shortest decimal text denotes exactly d.
func (d decimal) float() (float64, bool) {
	f, _ := d.r.Float64()
	if math.IsInf(f, 0) {
		return 0, false
	}
	back, err := parseDecimal(strconv.FormatFloat(f, 'g', -1, 64), "")
	if err != nil {
		return 0, false
	}
	return f, back.r.Cmp(d.r) == 0
}

// plain converts a normalized value back to ordinary Go JSON values.
// Numbers become float64 where exact and json.Number otherwise.
func plain(v any) any {
	switch val := v.(type) {
	case decimal:
		if f, ok := val.float(); ok {
			return f
		}
		return json.Number(val.String())
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
