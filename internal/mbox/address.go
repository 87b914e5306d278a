package mbox

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^(.*?)\s*<(.+?)>`)

// ParseAddress splits a header value of the form `Name <email>` into the
// display name and the lower-cased address. A value without angle brackets is
// returned whole as the name with an empty address.
func ParseAddress(value string) (name, email string) {
	value = strings.TrimSpace(value)
	if m := addressPattern.FindStringSubmatch(value); m != nil {
		return cleanName(m[1]), strings.ToLower(strings.TrimSpace(m[2]))
	}
	return cleanName(value), ""
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = strings.TrimSpace(name[1 : len(name)-1])
	}
	return name
}
