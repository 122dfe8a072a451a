// Package paths expands symbolic path placeholders such as $TEMP into
// concrete filesystem paths and derives per-release working directories.
//
// A token is a path whose first segment may be a placeholder ("$NAME").
// Segments may be separated by "/" or "\" regardless of the host OS, since
// manifests are frequently authored on Windows.
package paths

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/blake2b"
)

// Built-in placeholder names.
const (
	TokenTemp         = "TEMP"
	TokenHome         = "HOME"
	TokenAppData      = "APPDATA"
	TokenLocalAppData = "LOCALAPPDATA"
	TokenProgramFiles = "PROGRAMFILES"
	TokenProgramData  = "PROGRAMDATA"
)

// workRootName is the directory under $TEMP that holds working directories.
const workRootName = "manage"

var envBacked = map[string]bool{
	TokenAppData:      true,
	TokenLocalAppData: true,
	TokenProgramFiles: true,
	TokenProgramData:  true,
}

// IsBuiltin reports whether name is a placeholder the resolver always knows.
func IsBuiltin(name string) bool {
	return name == TokenTemp || name == TokenHome || envBacked[name]
}

// PathResolutionError reports a placeholder that could not be expanded.
type PathResolutionError struct {
	Token  string
	Reason string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve path %q: %s", e.Token, e.Reason)
}

// Resolver maps placeholder tokens to absolute paths. The zero value is not
// usable; construct with New.
type Resolver struct {
	tempDir func() string
	homeDir func() (string, error)
	getenv  func(string) string
	tokens  map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTempDir pins the $TEMP root instead of using os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Resolver) {
		if dir != "" {
			r.tempDir = func() string { return dir }
		}
	}
}

// WithTokens adds custom placeholders, e.g. {"DEST": "/opt/apps"}.
func WithTokens(tokens map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range tokens {
			r.tokens[strings.ToUpper(k)] = v
		}
	}
}

// WithEnv replaces the environment lookup used for env-backed placeholders.
func WithEnv(getenv func(string) string) Option {
	return func(r *Resolver) { r.getenv = getenv }
}

// WithHomeDir replaces the home directory lookup used for $HOME.
func WithHomeDir(fn func() (string, error)) Option {
	return func(r *Resolver) { r.homeDir = fn }
}

// New creates a Resolver bound to the host environment unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		tempDir: os.TempDir,
		homeDir: homedir.Dir,
		getenv:  os.Getenv,
		tokens:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands a token. Tokens without a placeholder are returned
// cleaned and may be relative.
func (r *Resolver) Resolve(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", &PathResolutionError{Token: token, Reason: "empty path"}
	}
	norm := filepath.FromSlash(strings.ReplaceAll(trimmed, `\`, "/"))
	if !strings.HasPrefix(norm, "$") {
		return filepath.Clean(norm), nil
	}

	head, rest, _ := strings.Cut(norm, string(filepath.Separator))
	name := strings.ToUpper(strings.Trim(strings.TrimPrefix(head, "$"), "{}"))
	root, err := r.root(token, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rest), nil
}

// ResolveIn expands a token and anchors relative results under base.
// Relative tokens may not climb out of base.
func (r *Resolver) ResolveIn(base, token string) (string, error) {
	p, err := r.Resolve(token)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	if !filepath.IsLocal(p) {
		return "", &PathResolutionError{Token: token, Reason: "relative path escapes the working directory"}
	}
	return filepath.Join(base, p), nil
}

func (r *Resolver) root(token, name string) (string, error) {
	if v, ok := r.tokens[name]; ok {
		if v == "" {
			return "", &PathResolutionError{Token: token, Reason: fmt.Sprintf("placeholder $%s is empty", name)}
		}
		return v, nil
	}

	switch {
	case name == TokenTemp:
		dir := r.tempDir()
		if dir == "" {
			return "", &PathResolutionError{Token: token, Reason: "temporary directory is unavailable"}
		}
		return dir, nil
	case name == TokenHome:
		dir, err := r.homeDir()
		if err != nil || dir == "" {
			reason := "home directory is unavailable"
			if err != nil {
				reason = fmt.Sprintf("%s: %v", reason, err)
			}
			return "", &PathResolutionError{Token: token, Reason: reason}
		}
		return dir, nil
	case envBacked[name]:
		v := r.getenv(name)
		if v == "" {
			return "", &PathResolutionError{Token: token, Reason: fmt.Sprintf("environment variable %s is not set", name)}
		}
		return v, nil
	}
	return "", &PathResolutionError{Token: token, Reason: fmt.Sprintf("unknown placeholder $%s", name)}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WorkingDirFor returns the working directory for a repository full name
// ("owner/repo") and release. The result is stable for the same inputs and
// distinct for different releases; a digest suffix keeps "a-b/c" and
// "a/b-c" apart. The directory is not created.
func (r *Resolver) WorkingDirFor(fullName string, releaseID int64) (string, error) {
	root, err := r.root("$"+TokenTemp, TokenTemp)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s@%d", fullName, releaseID)))
	name := fmt.Sprintf("%s-%d-%s",
		unsafeChars.ReplaceAllString(strings.ReplaceAll(fullName, "/", "-"), "_"),
		releaseID,
		hex.EncodeToString(sum[:4]),
	)
	return filepath.Join(root, workRootName, name), nil
}

// EnsureWorkingDir resolves and creates the working directory.
func (r *Resolver) EnsureWorkingDir(fullName string, releaseID int64) (string, error) {
	dir, err := r.WorkingDirFor(fullName, releaseID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}
	return dir, nil
}
