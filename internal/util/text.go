package util

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases, and collapses whitespace to single spaces.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespace.ReplaceAllString(s, " ")))
}

// Fingerprint returns the hex SHA-256 of the normalized text, used for
// duplicate detection across replies and generated posts.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// ContainsExcludedWord reports whether text contains any of the words after
// normalization on both sides.
func ContainsExcludedWord(text string, words []string) bool {
	normalized := Normalize(text)
	for _, w := range words {
		nw := Normalize(w)
		if nw != "" && strings.Contains(normalized, nw) {
			return true
		}
	}
	return false
}

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)free money`),
	regexp.MustCompile(`(?i)guaranteed`),
	regexp.MustCompile(`(?i)dm me now`),
	regexp.MustCompile(`100%`),
}

// LikelySpam flags very short or pattern-matching text before any model call.
func LikelySpam(s string) bool {
	if len(Normalize(s)) < 10 {
		return true
	}
	for _, p := range spamPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// CollapseLine collapses whitespace without lowercasing, for publishable text.
func CollapseLine(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Jitter returns a random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// JitterSleep sleeps a random duration in [min, max], or returns early when
// ctx is cancelled.
func JitterSleep(ctx context.Context, min, max time.Duration) error {
	select {
	case <-time.After(Jitter(min, max)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
