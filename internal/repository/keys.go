package repository

import (
	"strconv"
	"strings"
)

const (
	userKeyPrefix  = "user:"
	plantKeyPrefix = "plant:"
	usageKeyPrefix = "usage:"
	sessionKey     = "current-user"
)

func UserKey(email string) string {
	return userKeyPrefix + email
}

func UsageKey(email string) string {
	return usageKeyPrefix + email
}

// PlantPrefix is the key prefix shared by every plant record of one user.
func PlantPrefix(email string) string {
	return plantKeyPrefix + email + ":"
}

func PlantKey(email string, id int64) string {
	return PlantPrefix(email) + strconv.FormatInt(id, 10)
}

// SessionKey returns the session pointer key for scope. The empty scope is the
// default local session.
func SessionKey(scope string) string {
	if scope == "" {
		return sessionKey
	}
	return sessionKey + ":" + scope
}

// plantIDFromKey extracts the record id from a plant key listed under prefix.
// ok is false when anything but a numeric id follows the prefix, which also
// keeps keys of an email that merely starts with the same text out.
func plantIDFromKey(prefix, key string) (int64, bool) {
	rest, found := strings.CutPrefix(key, prefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
