package target

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// Kind distinguishes the two sorts of targets the exporter polls.
//
type Kind string

const (
	KindRepository   Kind = "repository"
	KindOrganization Kind = "organization"
)

// Repository is a single `namespace/name` image on Docker Hub.
//
type Repository struct {
	Namespace string
	Name      string
}

// String returns the identifier used to build the upstream URL.
//
func (r Repository) String() string {
	return r.Namespace + "/" + r.Name
}

// Organization is a namespace whose repositories are discovered through the
// paginated listing endpoint.
//
type Organization struct {
	Namespace string
}

func (o Organization) String() string {
	return o.Namespace
}

// Set is the resolved, immutable list of targets for a collection cycle.
//
type Set struct {
	Repositories  []Repository
	Organizations []Organization
}

// Len returns the total number of targets.
//
func (s Set) Len() int {
	return len(s.Repositories) + len(s.Organizations)
}

// ConfigurationError is returned whenever the configuration can't produce a
// usable exporter (e.g., no targets at all).
//
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Field + ": " + e.Message
}

// Split breaks a comma-separated configuration value into trimmed,
// non-empty entries.
//
//	" a, ,b " -> [a b]
//
func Split(v string) []string {
	var out []string

	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		out = append(out, entry)
	}

	return out
}

// Resolve turns the configured repository and organization identifiers into
// a target Set, keeping the first occurrence of duplicated entries.
//
// Repository identifiers may be given in any form accepted by a container
// image reference that points at Docker Hub (`user/image`,
// `docker.io/user/image:tag`, `nginx`), all of them normalized to
// `namespace/name`.
//
func Resolve(images, orgs []string) (Set, error) {
	set := Set{}

	seenRepos := map[Repository]struct{}{}
	for _, image := range images {
		image = strings.TrimSpace(image)
		if image == "" {
			continue
		}

		repo, err := ParseRepository(image)
		if err != nil {
			return Set{}, &ConfigurationError{
				Field:   "IMAGES",
				Message: err.Error(),
			}
		}

		if _, found := seenRepos[repo]; found {
			continue
		}

		seenRepos[repo] = struct{}{}
		set.Repositories = append(set.Repositories, repo)
	}

	seenOrgs := map[Organization]struct{}{}
	for _, org := range orgs {
		org = strings.Trim(strings.TrimSpace(org), "/")
		if org == "" {
			continue
		}

		if strings.Contains(org, "/") {
			return Set{}, &ConfigurationError{
				Field:   "ORGS",
				Message: fmt.Sprintf("'%s' is not a namespace", org),
			}
		}

		o := Organization{Namespace: strings.ToLower(org)}
		if _, found := seenOrgs[o]; found {
			continue
		}

		seenOrgs[o] = struct{}{}
		set.Organizations = append(set.Organizations, o)
	}

	if set.Len() == 0 {
		return Set{}, &ConfigurationError{
			Field:   "IMAGES/ORGS",
			Message: "at least one image or organization must be provided",
		}
	}

	return set, nil
}

// ParseRepository parses a single image identifier into a Repository,
// rejecting references to registries other than Docker Hub.
//
// Docker Hub names are case-insensitive, so identifiers are lowercased
// first, the same way organizations are.
//
func ParseRepository(s string) (Repository, error) {
	ref, err := name.ParseReference(strings.ToLower(s))
	if err != nil {
		return Repository{}, fmt.Errorf("parse reference '%s': %w", s, err)
	}

	repo := ref.Context()
	if repo.RegistryStr() != name.DefaultRegistry {
		return Repository{}, fmt.Errorf(
			"'%s' does not point at docker hub (registry %s)",
			s, repo.RegistryStr(),
		)
	}

	namespace, image, found := strings.Cut(repo.RepositoryStr(), "/")
	if !found || strings.Contains(image, "/") {
		return Repository{}, fmt.Errorf(
			"'%s' is not a namespace/name pair", s,
		)
	}

	return Repository{Namespace: namespace, Name: image}, nil
}
