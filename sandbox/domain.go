package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/skosovsky/toolsynth"
)

// Domain names used by DefaultCategories.
const (
	Filesystem = "filesystem"
	Social     = "social"
	Gaming     = "gaming"
	Memory     = "memory"
)

// SingletonKey is the record key of tools called without identity arguments.
const SingletonKey = "*"

// DefaultCategories maps catalog categories to sandbox domains.
var DefaultCategories = map[string]string{
	"File Management":     Filesystem,
	"Operating System":    Filesystem,
	"Development Tools":   Filesystem,
	"Social Media":        Social,
	"Communication Tools": Social,
	"Gaming":              Gaming,
	"Memory Management":   Memory,
}

// DefaultIdentityArgs are argument names that identify the entity a call is about.
var DefaultIdentityArgs = []string{
	"path", "file_path", "filepath", "filename", "file", "directory", "dir",
	"id", "key", "name", "username", "user", "user_id", "item", "item_id", "post_id",
	"channel", "game_id", "memory_id",
}

// DefaultTransientFields are output fields describing the call rather than the entity.
var DefaultTransientFields = []string{"status", "success", "message", "error", "ok"}

// domainOf returns the sandbox domain of tool, or "" when it is stateless.
func (s *Sandbox) domainOf(tool *toolsynth.ToolRecord) string {
	if d := tool.Domain(); d != "" {
		return d
	}
	for _, tag := range tool.Tags() {
		if d, ok := s.opts.categories[tag]; ok {
			return d
		}
	}
	return ""
}

func (s *Sandbox) isIdentity(arg string) bool {
	if _, ok := s.opts.identity[arg]; ok {
		return true
	}
	return strings.HasSuffix(arg, "_id")
}

// identityOf splits args into the canonical identity string and the remaining fields.
// The canonical form is the JSON array of sorted [name, value] pairs, so values holding
// separators cannot alias another identity. No identity arguments yield "".
func (s *Sandbox) identityOf(args map[string]any) (string, map[string]any) {
	var pairs [][2]any
	rest := make(map[string]any)
	for _, name := range slices.Sorted(maps.Keys(args)) {
		if s.isIdentity(name) {
			pairs = append(pairs, [2]any{name, args[name]})
			continue
		}
		rest[name] = args[name]
	}
	if len(pairs) == 0 {
		return "", rest
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Sprintf("%#v", pairs), rest
	}
	return string(data), rest
}

// hashIdentity returns the first 16 hex characters of the SHA-256 of canonical.
func hashIdentity(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// Key derives the record key for args. It is deterministic and ignores argument order.
func (s *Sandbox) Key(args map[string]any) string {
	canonical, _ := s.identityOf(args)
	return s.keyFor(canonical)
}

func (s *Sandbox) keyFor(canonical string) string {
	if canonical == "" {
		return SingletonKey
	}
	return s.opts.hash(canonical)
}
