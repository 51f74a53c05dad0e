// Package secretpath implements the secret-path mini-language grammar:
// "<backend>:<args>:<path>", where <args> is a comma-separated list of
// literal or key=value tokens, and <path> is the backend-specific payload.
//
// Grounded on the original rconfd Backend lookup table (prefix matching on
// a fixed list) together with its 3-way split on ':', adapted into a single
// left-to-right scan since Go has no native multi-return split-on-first-N.
package secretpath

import (
	"fmt"
	"strings"
)

// Backend identifies which dispatcher (C7) handles a parsed path.
type Backend string

// The fixed backend table; prefix matching is performed against these.
const (
	Authsvc Backend = "authsvc"
	Env     Backend = "env"
	File    Backend = "file"
	Exe     Backend = "exe"
)

var backends = []Backend{Authsvc, Env, File, Exe}

// KV is a single key=value keyword argument, order-preserving.
type KV struct {
	Key   string
	Value string
}

// Path is the parsed form of a secret reference.
type Path struct {
	Backend Backend
	Args    []string // positional (non key=value) tokens, in order
	Kwargs  []KV      // nil when no key=value token was present
	Path    string
	full    string
}

// FullRepr returns the round-trippable textual form of the path.
func (p Path) FullRepr() string { return p.full }

func (p Path) String() string { return p.full }

// ErrKind enumerates the ways parsing can fail.
type ErrKind int

const (
	MissingBackend ErrKind = iota
	MissingArgs
	MissingPath
	ExtraData
	UnknownBackend
)

func (k ErrKind) String() string {
	switch k {
	case MissingBackend:
		return "MissingBackend"
	case MissingArgs:
		return "MissingArgs"
	case MissingPath:
		return "MissingPath"
	case ExtraData:
		return "ExtraData"
	case UnknownBackend:
		return "UnknownBackend"
	default:
		return "UnknownError"
	}
}

// ParseError is returned when a secret-path string does not conform to the
// grammar. It is always fatal to the enclosing pass.
type ParseError struct {
	Kind  ErrKind
	Input string
	Token string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("secretpath: %s parsing %q (token %q)", e.Kind, e.Input, e.Token)
	}
	return fmt.Sprintf("secretpath: %s parsing %q", e.Kind, e.Input)
}

// Fatal reports whether the error should abort the enclosing pass (always
// true for parse errors).
func (e *ParseError) Fatal() bool { return true }

// Parse splits a secret-path string into its three grammar components. The
// backend segment is matched by prefix against the fixed backend table.
func Parse(input string) (Path, error) {
	firstColon := strings.IndexByte(input, ':')
	if firstColon < 0 {
		return Path{}, &ParseError{Kind: MissingArgs, Input: input}
	}
	backendTok := input[:firstColon]
	if backendTok == "" {
		return Path{}, &ParseError{Kind: MissingBackend, Input: input}
	}

	rest := input[firstColon+1:]
	secondColon := strings.IndexByte(rest, ':')
	if secondColon < 0 {
		return Path{}, &ParseError{Kind: MissingPath, Input: input}
	}
	argsTok := rest[:secondColon]
	pathTok := rest[secondColon+1:]

	if argsTok == "" {
		return Path{}, &ParseError{Kind: MissingArgs, Input: input}
	}
	if pathTok == "" {
		return Path{}, &ParseError{Kind: MissingPath, Input: input}
	}
	// A bare path may legitimately contain ':' (it's opaque to the parser),
	// so ExtraData can't be detected by "too many colons" alone. It signals
	// a grammar violation only when args itself contains an empty token
	// produced by a stray leading/trailing/double comma.
	backend, ok := matchBackend(backendTok)
	if !ok {
		return Path{}, &ParseError{Kind: UnknownBackend, Input: input, Token: backendTok}
	}

	args, kwargs, err := parseArgs(argsTok, input)
	if err != nil {
		return Path{}, err
	}

	return Path{
		Backend: backend,
		Args:    args,
		Kwargs:  kwargs,
		Path:    pathTok,
		full:    input,
	}, nil
}

func matchBackend(tok string) (Backend, bool) {
	for _, b := range backends {
		if strings.HasPrefix(tok, string(b)) {
			return b, true
		}
	}
	return "", false
}

func parseArgs(argsTok, input string) ([]string, []KV, error) {
	tokens := strings.Split(argsTok, ",")
	var args []string
	var kwargs []KV
	for _, tok := range tokens {
		if tok == "" {
			return nil, nil, &ParseError{Kind: ExtraData, Input: input, Token: argsTok}
		}
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			kwargs = append(kwargs, KV{Key: tok[:eq], Value: tok[eq+1:]})
		} else {
			args = append(args, tok)
		}
	}
	return args, kwargs, nil
}

// Render reconstructs the round-trippable textual form of a Path from its
// components (modulo kwargs ordering, which is stable because Kwargs
// preserves parse order).
func Render(backend Backend, args []string, kwargs []KV, path string) string {
	var sb strings.Builder
	sb.WriteString(string(backend))
	sb.WriteByte(':')
	first := true
	for _, a := range args {
		if !first {
			sb.WriteByte(',')
		}
		sb.WriteString(a)
		first = false
	}
	for _, kv := range kwargs {
		if !first {
			sb.WriteByte(',')
		}
		sb.WriteString(kv.Key)
		sb.WriteByte('=')
		sb.WriteString(kv.Value)
		first = false
	}
	sb.WriteByte(':')
	sb.WriteString(path)
	return sb.String()
}
