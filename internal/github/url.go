// Package github parses repository references and talks to the GitHub REST
// API for credential validation and Actions secret management.
package github

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mapfold/geopipeline/internal/errors"
	"github.com/mapfold/geopipeline/internal/interaction"
)

// RepoRef identifies a repository as owner/name.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Accepted URL grammars: https://host/OWNER/REPO and user@host:OWNER/REPO.
var (
	httpsPattern = regexp.MustCompile(`^https://[^/]+/([^/]+)/([^/]+)$`)
	sshPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]+@[^:/]+:([^/]+)/([^/]+)$`)
)

// ParseRepoURL extracts owner/name from a repository URL. Trailing slashes
// and a trailing .git suffix are ignored. ok is false when the URL matches
// neither grammar; parsing never fails hard.
func ParseRepoURL(raw string) (RepoRef, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	for _, pattern := range []*regexp.Regexp{httpsPattern, sshPattern} {
		if m := pattern.FindStringSubmatch(s); m != nil {
			return RepoRef{Owner: m[1], Name: m[2]}, true
		}
	}
	return RepoRef{}, false
}

// ResolveRepo turns a raw URL into a confirmed RepoRef. Unparseable input
// degrades to manual owner/name entry, and either path ends with an
// interactive confirmation that allows overriding the detected values.
func ResolveRepo(prompter interaction.Prompter, raw string) (RepoRef, error) {
	ref, ok := ParseRepoURL(raw)
	if !ok {
		manual, err := promptRef(prompter)
		if err != nil {
			return RepoRef{}, err
		}
		ref = manual
	}

	confirmed, err := prompter.Confirm(fmt.Sprintf("Use repository %s?", ref), true)
	if err != nil {
		return RepoRef{}, err
	}
	if !confirmed {
		override, err := promptRef(prompter)
		if err != nil {
			return RepoRef{}, err
		}
		ref = override
	}

	if ref.Owner == "" || ref.Name == "" {
		return RepoRef{}, errors.ErrRepoRefRequired
	}
	return ref, nil
}

func promptRef(prompter interaction.Prompter) (RepoRef, error) {
	owner, err := prompter.Input("Repository owner")
	if err != nil {
		return RepoRef{}, fmt.Errorf("failed to read repository owner: %w", err)
	}
	name, err := prompter.Input("Repository name")
	if err != nil {
		return RepoRef{}, fmt.Errorf("failed to read repository name: %w", err)
	}
	return RepoRef{Owner: strings.TrimSpace(owner), Name: strings.TrimSpace(name)}, nil
}
