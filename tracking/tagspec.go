package tracking

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spfs-io/spfs/spfserrors"
)

// TagSpec identifies a position in a tag stream: "[org/]name[~version]".
// Version 0 means the head (most recent) record; version k>0 means the
// k-th ancestor of the head.
type TagSpec struct {
	Org     string
	Name    string
	Version int
}

// Path returns the spec with no version suffix: "org/name" or "name".
func (s TagSpec) Path() string {
	if s.Org != "" {
		return s.Org + "/" + s.Name
	}
	return s.Name
}

// String renders the canonical spec form, including a "~version" suffix
// when Version is non-zero.
func (s TagSpec) String() string {
	if s.Version == 0 {
		return s.Path()
	}
	return fmt.Sprintf("%s~%d", s.Path(), s.Version)
}

// BuildTagSpec constructs a TagSpec from its parts, validating each one.
func BuildTagSpec(org, name string, version int) (TagSpec, error) {
	return validateTagSpec(TagSpec{Org: org, Name: name, Version: version})
}

// ParseTagSpec parses the string form "[org/]name[~version]".
func ParseTagSpec(spec string) (TagSpec, error) {
	org, nameVersion := rsplitOnce(spec, "/")

	name := nameVersion
	version := 0
	if idx := strings.IndexByte(nameVersion, '~'); idx >= 0 {
		name = nameVersion[:idx]
		versionStr := nameVersion[idx+1:]
		v, err := strconv.Atoi(versionStr)
		if err != nil || !allValid(versionStr, isVersionChar) {
			return TagSpec{}, spfserrors.InvalidDigestError{Value: spec, Reason: "invalid tag version"}
		}
		version = v
	}

	return validateTagSpec(TagSpec{Org: org, Name: name, Version: version})
}

func validateTagSpec(spec TagSpec) (TagSpec, error) {
	if spec.Name == "" {
		return TagSpec{}, spfserrors.InvalidDigestError{Value: spec.Path(), Reason: "tag name cannot be empty"}
	}
	if !allValid(spec.Org, isOrgChar) {
		return TagSpec{}, spfserrors.InvalidDigestError{Value: spec.Org, Reason: "invalid tag org"}
	}
	if !allValid(spec.Name, isNameChar) {
		return TagSpec{}, spfserrors.InvalidDigestError{Value: spec.Name, Reason: "invalid tag name"}
	}
	return spec, nil
}

// rsplitOnce splits spec on the last occurrence of sep, matching Python's
// str.rsplit(sep, 1); if sep is absent, the first return value is empty.
func rsplitOnce(spec, sep string) (string, string) {
	idx := strings.LastIndex(spec, sep)
	if idx < 0 {
		return "", spec
	}
	return spec[:idx], spec[idx+1:]
}

func allValid(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}

func isOrgChar(r rune) bool {
	return isNameChar(r) || r == '/'
}

func isVersionChar(r rune) bool {
	return unicode.IsDigit(r)
}
