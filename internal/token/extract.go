package token

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Extraction failures. These describe why a candidate request body did
// not yield a credential; callers treat them as "not a credential", not
// as fatal conditions.
var (
	ErrEmptyBody     = errors.New("request has no post data")
	ErrMalformedJSON = errors.New("post data is not valid JSON")
	ErrFieldsMissing = errors.New("poToken or visitorData not present in payload")
)

const (
	poTokenKey     = "poToken"
	visitorDataKey = "visitorData"
)

// Extractor parses intercepted request bodies into Credentials. It is
// stateless apart from its logger; Extract is safe for concurrent use.
type Extractor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExtractor returns an Extractor that stamps credentials with the
// wall clock and writes parse diagnostics to the given logger.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{
		logger: logger.Named("extractor"),
		now:    time.Now,
	}
}

// Extract parses a youtubei request body. The canonical locations are
// tried first (context.client.visitorData and
// serviceIntegrityDimensions.poToken); if either is absent the whole
// payload is searched recursively for a matching key. Diagnostics about
// near-misses go to the log, never into the returned error.
func (e *Extractor) Extract(body string) (Credential, error) {
	if body == "" {
		return Credential{}, ErrEmptyBody
	}

	var payload interface{}
	if err := json.UnmarshalFromString(body, &payload); err != nil {
		e.logger.Warn("failed to parse request body as JSON",
			zap.Int("body_len", len(body)),
			zap.Error(err))
		return Credential{}, ErrMalformedJSON
	}

	visitorData, _ := stringAtPath(payload, "context", "client", visitorDataKey)
	poToken, _ := stringAtPath(payload, "serviceIntegrityDimensions", poTokenKey)

	if poToken == "" {
		if path, val, ok := findString(payload, func(key string) bool {
			return strings.EqualFold(key, poTokenKey)
		}); ok {
			poToken = val
			e.logger.Debug("poToken found via recursive search", zap.String("path", path))
		}
	}

	if visitorData == "" {
		if path, val, ok := findString(payload, func(key string) bool {
			return key == visitorDataKey
		}); ok {
			visitorData = val
			e.logger.Debug("visitorData found via recursive search", zap.String("path", path))
		}
	}

	if poToken == "" || visitorData == "" {
		e.logDiagnostics(payload, poToken == "", visitorData == "")
		return Credential{}, ErrFieldsMissing
	}

	return Credential{
		Updated:     e.now().Unix(),
		PoToken:     poToken,
		VisitorData: visitorData,
	}, nil
}

// logDiagnostics records enough structure to debug an unexpected payload
// shape without dumping the payload itself.
func (e *Extractor) logDiagnostics(payload interface{}, missingToken, missingVisitor bool) {
	var missing []string
	if missingToken {
		missing = append(missing, poTokenKey)
	}
	if missingVisitor {
		missing = append(missing, visitorDataKey)
	}

	var topKeys []string
	if obj, ok := payload.(map[string]interface{}); ok {
		topKeys = sortedKeys(obj)
	}

	tokenLike := collectTokenLikeKeys(payload, "", nil)
	if len(tokenLike) > 25 {
		tokenLike = tokenLike[:25]
	}

	e.logger.Warn("payload matched endpoint but fields are missing",
		zap.Strings("missing", missing),
		zap.Strings("top_keys", topKeys),
		zap.Strings("token_like_keys", tokenLike))
}

// stringAtPath walks a parsed JSON value along a fixed chain of object
// keys and returns the string at the end, if every hop exists.
func stringAtPath(v interface{}, keys ...string) (string, bool) {
	cur := v
	for _, key := range keys {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// findString searches the parsed structure depth-first for a string
// value whose key satisfies match. Object keys are visited in sorted
// order so the result is deterministic regardless of map iteration.
func findString(v interface{}, match func(key string) bool) (string, string, bool) {
	return findStringAt(v, "", match)
}

func findStringAt(v interface{}, path string, match func(key string) bool) (string, string, bool) {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, key := range sortedKeys(node) {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if s, ok := node[key].(string); ok && match(key) {
				return childPath, s, true
			}
			if p, s, ok := findStringAt(node[key], childPath, match); ok {
				return p, s, true
			}
		}
	case []interface{}:
		for i, item := range node {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if p, s, ok := findStringAt(item, childPath, match); ok {
				return p, s, true
			}
		}
	}
	return "", "", false
}

// collectTokenLikeKeys gathers the paths of all keys containing "token",
// case-insensitively. Used only for diagnostics.
func collectTokenLikeKeys(v interface{}, path string, acc []string) []string {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, key := range sortedKeys(node) {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if strings.Contains(strings.ToLower(key), "token") {
				acc = append(acc, childPath)
			}
			acc = collectTokenLikeKeys(node[key], childPath, acc)
		}
	case []interface{}:
		for i, item := range node {
			acc = collectTokenLikeKeys(item, fmt.Sprintf("%s[%d]", path, i), acc)
		}
	}
	return acc
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
