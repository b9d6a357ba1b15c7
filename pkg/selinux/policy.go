// Package selinux provides the minimal SELinux label lookup the Commit
// Generator needs: given a loaded file_contexts policy, map a virtual
// path and a file class (directory, symlink) to a "security.selinux"
// xattr value.
//
// github.com/opencontainers/selinux (already an indirect dependency via
// containerd) is used for the one thing it actually provides — checking
// whether SELinux is enabled/enforcing on the host. That check does not
// gate labelling: a loaded file_contexts table labels paths whether or
// not the host runs SELinux, and a missing table simply yields no
// labels. It does not provide
// file_contexts path matching, so that part is a small hand-rolled
// regex matcher grounded directly on the file_contexts format (see
// DESIGN.md).
package selinux

import (
	"bufio"
	"os"
	"regexp"
	"sort"
	"strings"

	containerdselinux "github.com/opencontainers/selinux/go-selinux"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Class distinguishes the two file classes the Commit Generator labels.
type Class int

const (
	ClassDirectory Class = iota
	ClassSymlink
)

// rule is one compiled file_contexts line: a path regex, an optional
// class restriction, and the context string to apply when it matches.
type rule struct {
	pattern *regexp.Regexp
	class   string // "" (any), "d" (directory), "l" (symlink), ...
	context string
	specificity int // longer, less-wildcarded patterns win; see compile()
}

// Policy is a loaded file_contexts table plus whether the host had
// SELinux enforcing when it was loaded. Label does not consult the
// enforcing flag: it answers from the table alone, and an empty table
// (no file_contexts found) makes it return ok=false for every path.
type Policy struct {
	rules     []rule
	enforcing bool
}

// Enabled reports whether the host's SELinux subsystem is enabled at
// all; Load still parses file_contexts when it isn't, since composing
// on a non-SELinux host for a target that will run with SELinux is a
// legitimate cross-build scenario — only the live enforcing check uses
// this for its own diagnostics.
func Enabled() bool {
	return containerdselinux.GetEnabled()
}

// Load reads a file_contexts file (conventionally
// <root>/etc/selinux/<policyname>/contexts/files/file_contexts or its
// /usr/etc equivalent post-relocation). A missing file is not an error:
// Load returns an empty, non-enforcing Policy, and the Commit Generator
// simply skips labelling.
func Load(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{}, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "open file_contexts at %s", path)
	}
	defer f.Close()

	p := &Policy{enforcing: containerdselinux.EnforceMode() == containerdselinux.Enforcing}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, ok := parseFileContextsLine(line)
		if !ok {
			continue
		}
		p.rules = append(p.rules, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.Wrap(types.ErrIO, err, "read file_contexts at %s", path)
	}

	// Longest (most specific) pattern wins on ties, matching
	// file_contexts semantics where later/more-specific rules override
	// earlier, more general ones.
	sort.SliceStable(p.rules, func(i, j int) bool {
		return p.rules[i].specificity < p.rules[j].specificity
	})

	return p, nil
}

// parseFileContextsLine parses one "pattern [class] context" line. The
// class field, when present, is one of the single-letter file_contexts
// class markers ("-d" directory, "-l" symlink, ...); absence means the
// rule applies to any class.
func parseFileContextsLine(line string) (rule, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return rule{}, false
	}

	pat := fields[0]
	var class, context string
	if len(fields) == 2 {
		context = fields[1]
	} else {
		classField := fields[1]
		context = fields[2]
		if strings.HasPrefix(classField, "-") && len(classField) == 2 {
			class = classField[1:]
		}
	}

	re, err := compileFileContextsPattern(pat)
	if err != nil {
		return rule{}, false
	}

	return rule{pattern: re, class: class, context: context, specificity: len(pat)}, true
}

// compileFileContextsPattern turns a file_contexts POSIX-ERE path
// pattern into a Go regexp anchored to the full path.
func compileFileContextsPattern(pat string) (*regexp.Regexp, error) {
	anchored := "^" + pat + "$"
	return regexp.Compile(anchored)
}

// Label looks up the context for virtualPath (always starting with "/")
// and class. ok is false when the policy has no rules or no rule
// matched — callers must skip writing a security.selinux xattr in that
// case rather than writing an empty one.
func (p *Policy) Label(virtualPath string, class Class) (context string, ok bool) {
	if p == nil || len(p.rules) == 0 {
		return "", false
	}
	classMarker := ""
	if class == ClassDirectory {
		classMarker = "d"
	} else if class == ClassSymlink {
		classMarker = "l"
	}

	best := -1
	bestSpecificity := -1
	for i, r := range p.rules {
		if r.class != "" && r.class != classMarker {
			continue
		}
		if !r.pattern.MatchString(virtualPath) {
			continue
		}
		if r.specificity >= bestSpecificity {
			best = i
			bestSpecificity = r.specificity
		}
	}
	if best < 0 {
		return "", false
	}
	return p.rules[best].context, true
}

// Xattr builds the security.selinux xattr value for context: a NUL
// terminated string, matching compose.rs's label_to_xattrs.
func Xattr(context string) types.Xattr {
	return types.Xattr{Name: "security.selinux", Value: append([]byte(context), 0)}
}
