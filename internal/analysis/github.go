package analysis

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/models"
	"golang.org/x/oauth2"
)

// maxDependencies caps how many SBOM packages are listed.
const maxDependencies = 25

// GitHub analyzes repositories hosted on github.com through the REST API.
type GitHub struct {
	client *github.Client
	now    func() time.Time
}

// NewGitHub returns a GitHub analyzer. An empty token uses anonymous,
// rate-limited access.
func NewGitHub(token string) *GitHub {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewGitHubWithClient(github.NewClient(hc))
}

// NewGitHubWithClient wraps an existing go-github client.
func NewGitHubWithClient(c *github.Client) *GitHub {
	return &GitHub{client: c, now: func() time.Time { return time.Now().UTC() }}
}

// Analyze reads the repository's language bytes, SBOM packages and flags.
func (g *GitHub) Analyze(ctx context.Context, project models.Project) (*models.Analysis, error) {
	owner, repo, err := ParseRepoURL(project.RepoURL)
	if err != nil {
		return nil, err
	}

	repository, resp, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, apperr.Upstream("github", statusOf(resp), "", fmt.Errorf("get %s/%s: %w", owner, repo, err))
	}
	langs, resp, err := g.client.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		return nil, apperr.Upstream("github", statusOf(resp), "", fmt.Errorf("list languages %s/%s: %w", owner, repo, err))
	}

	var warnings []string
	if repository.GetArchived() {
		warnings = append(warnings, "Repository is archived; no upstream changes will land during migration.")
	}
	if repository.GetFork() {
		warnings = append(warnings, "Repository is a fork; confirm the migration targets the right upstream.")
	}
	if len(langs) == 0 {
		warnings = append(warnings, "No languages detected in the repository.")
	}

	deps := []string{}
	sbom, _, err := g.client.DependencyGraph.GetSBOM(ctx, owner, repo)
	if err != nil {
		warnings = append(warnings, "Dependency graph unavailable for this repository.")
	} else if sbom != nil && sbom.SBOM != nil {
		for _, p := range sbom.SBOM.Packages {
			if p.GetName() == "" || strings.HasPrefix(p.GetSPDXID(), "SPDXRef-DOCUMENT") {
				continue
			}
			dep := p.GetName()
			if v := p.GetVersionInfo(); v != "" {
				dep += "@" + v
			}
			deps = append(deps, dep)
			if len(deps) == maxDependencies {
				break
			}
		}
	}
	if warnings == nil {
		warnings = []string{}
	}

	return &models.Analysis{
		Languages:      Percentages(langs),
		Dependencies:   deps,
		Warnings:       warnings,
		LastAnalyzedAt: g.now(),
	}, nil
}

func statusOf(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// ParseRepoURL extracts owner and repository name from a GitHub URL in
// https, ssh or bare host form.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "git@github.com:"):
		s = strings.TrimPrefix(s, "git@github.com:")
	default:
		for _, prefix := range []string{"https://", "http://", "ssh://git@", "git://"} {
			s = strings.TrimPrefix(s, prefix)
		}
		s = strings.TrimPrefix(s, "www.")
		if !strings.HasPrefix(s, "github.com/") {
			return "", "", apperr.InvalidArgument("repoUrl %q is not a github.com repository", raw)
		}
		s = strings.TrimPrefix(s, "github.com/")
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.InvalidArgument("repoUrl %q has no owner/repository", raw)
	}
	return parts[0], parts[1], nil
}

// Percentages converts language byte counts into whole percentages that sum
// to 100, largest language first. Rounding uses the largest remainder method.
func Percentages(bytes map[string]int) []models.LanguageShare {
	total := 0
	for _, b := range bytes {
		total += b
	}
	shares := []models.LanguageShare{}
	if total == 0 {
		return shares
	}

	type part struct {
		name  string
		bytes int
		rem   int
	}
	parts := make([]part, 0, len(bytes))
	assigned := 0
	for name, b := range bytes {
		pct := b * 100 / total
		parts = append(parts, part{name: name, bytes: b, rem: b * 100 % total})
		shares = append(shares, models.LanguageShare{Name: name, Percent: pct})
		assigned += pct
	}
	// Hand out the rounding remainder to the largest fractional parts.
	idx := make([]int, len(parts))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := parts[idx[a]], parts[idx[b]]
		if pa.rem != pb.rem {
			return pa.rem > pb.rem
		}
		return pa.name < pb.name
	})
	for i := 0; assigned < 100; i++ {
		shares[idx[i%len(idx)]].Percent++
		assigned++
	}

	sort.SliceStable(shares, func(a, b int) bool {
		if shares[a].Percent != shares[b].Percent {
			return shares[a].Percent > shares[b].Percent
		}
		return shares[a].Name < shares[b].Name
	})
	return shares
}
