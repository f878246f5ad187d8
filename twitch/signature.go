package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Twitch-Eventsub request headers.
// See https://dev.twitch.tv/docs/eventsub/handling-webhook-events
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
)

const signaturePrefix = "sha256="

// ComputeSignature returns the expected signature header value for a
// delivery: "sha256=" + hex(HMAC-SHA256(secret, messageID||timestamp||body)).
// The body must be the exact raw request bytes; re-serialization would break
// the digest.
func ComputeSignature(secret []byte, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a claimed signature header against the raw body in
// constant time. Any malformed header yields false, never an error: a forged
// or mangled delivery is terminal for the request either way.
func VerifySignature(secret []byte, messageID, timestamp string, body []byte, claimed string) bool {
	if !strings.HasPrefix(claimed, signaturePrefix) {
		return false
	}
	claimedMAC, err := hex.DecodeString(strings.TrimPrefix(claimed, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hmac.Equal(claimedMAC, mac.Sum(nil))
}
