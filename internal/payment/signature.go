package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	errNoSignature = errors.New("no v1 signature in header")
	errBadHeader   = errors.New("malformed signature header")
	errTooOld      = errors.New("timestamp outside tolerance")
	errMismatch    = errors.New("signature mismatch")
	errNoSecret    = errors.New("webhook secret is not configured")
)

func computeSignature(payload []byte, ts int64, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeader builds a Stripe-Signature header value for payload.
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + hex.EncodeToString(computeSignature(payload, ts, secret))
}

// verifySignature checks header "t=<unix>,v1=<hex>[,v1=...]" against payload.
func verifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	var ts int64 = -1
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return errBadHeader
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errBadHeader
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, b)
		}
	}
	if ts < 0 {
		return errBadHeader
	}
	if len(sigs) == 0 {
		return errNoSignature
	}
	if tolerance > 0 && now.Sub(time.Unix(ts, 0)).Abs() > tolerance {
		return errTooOld
	}
	want := computeSignature(payload, ts, secret)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return errMismatch
}
