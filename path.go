package keyfs

import (
	gopath "path"
	"strings"
)

// Scheme is the URI scheme understood (and stripped) by path resolution.
const Scheme = "keyfs"

// HomeAlias is the reserved path segment that redirects resolution to the
// configured home directory when it appears as the leading segment.
const HomeAlias = "~~"

// Path is a caller-supplied path expression. It may be absolute, relative
// to the working directory, or home-relative (prefixed with the HomeAlias
// segment), and may carry a leading "keyfs:" scheme label. A Path is a
// value; it is never modified after parsing.
type Path string

func (p Path) String() string { return string(p) }

// IsAbs reports whether the expression is absolute once any scheme label
// is removed.
func (p Path) IsAbs() bool {
	return strings.HasPrefix(trimScheme(string(p)), "/")
}

// IsRoot reports whether the expression denotes the filesystem root, the
// only expression with no parent.
func (p Path) IsRoot() bool {
	return gopath.Clean(trimScheme(string(p))) == "/"
}

// Base returns the final segment of the expression.
func (p Path) Base() string {
	s := strings.TrimSuffix(trimScheme(string(p)), "/")
	if s == "" {
		return "/"
	}
	return gopath.Base(s)
}

// Parent returns the expression with its final segment removed, or "" if
// the expression has no parent.
func (p Path) Parent() Path {
	s := strings.TrimSuffix(trimScheme(string(p)), "/")
	if s == "" || s == "/" {
		return ""
	}
	dir := gopath.Dir(s)
	if dir == "." {
		return ""
	}
	return Path(dir)
}

func (p Path) homeRelative() bool {
	s := trimScheme(string(p))
	return s == HomeAlias || strings.HasPrefix(s, HomeAlias+"/")
}

// Key is a canonical object-store key: slash-separated, no scheme label,
// no trailing slash, no relative segments. Two Paths that denote the same
// logical resource resolve to the identical Key.
type Key string

func (k Key) String() string { return string(k) }

// ResolveKey turns a path expression into the canonical store key it
// denotes. cwd is the current working directory and home the configured
// home directory, both already canonical. The rules, in priority order:
//
//  1. The root resolves to its own string form.
//  2. A home-relative expression has its two-character alias prefix and
//     any leading slash stripped, and the remainder joins under home.
//  3. Anything else joins onto cwd: relative segments resolve under it,
//     absolute expressions override it.
//
// Any scheme label is stripped from the final result. ResolveKey performs
// no I/O and never fails for a well-formed expression; the only error is
// ErrInvalidPath, raised when no rule applies because cwd is unset.
func ResolveKey(p Path, cwd, home Key) (Key, error) {
	raw := trimScheme(string(p))

	switch {
	case p.IsRoot():
		return Key(gopath.Clean(raw)), nil

	case p.homeRelative():
		rest := strings.TrimPrefix(strings.TrimPrefix(raw, HomeAlias), "/")
		if rest == "" {
			return home, nil
		}
		rest = gopath.Clean(rest)
		return Key(strings.TrimSuffix(string(home), "/") + "/" + rest), nil

	case cwd != "":
		joined := raw
		if !strings.HasPrefix(raw, "/") {
			joined = string(cwd) + "/" + raw
		}
		return canonicalKey(joined), nil

	default:
		return "", PathInvalid(p)
	}
}

// canonicalKey normalizes a joined path into key form: scheme label gone,
// relative segments resolved, and no leading or trailing slash.
func canonicalKey(s string) Key {
	s = gopath.Clean(trimScheme(s))
	s = strings.TrimPrefix(s, "/")
	if s == "." {
		s = ""
	}
	return Key(s)
}

func trimScheme(s string) string {
	return strings.TrimPrefix(s, Scheme+":")
}
