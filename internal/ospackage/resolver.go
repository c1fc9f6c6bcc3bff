package ospackage

import (
	"fmt"
	"sort"
)

// ResolvePackageInfos walks the requires/provides graph and returns the
// closure of packages needed to install the requested set. When several
// packages provide the same capability the lexicographically highest name
// wins, matching how requested names are matched against repo indexes.
func ResolvePackageInfos(requested []PackageInfo, all []PackageInfo) ([]PackageInfo, error) {
	providers := buildProviderIndex(all)

	selected := make(map[string]PackageInfo)
	var queue []PackageInfo

	for _, req := range requested {
		if _, ok := selected[req.Name]; ok {
			continue
		}
		selected[req.Name] = req
		queue = append(queue, req)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, capability := range current.Requires {
			provider, err := pickProvider(capability, providers, selected)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", current.Name, err)
			}
			if provider == nil {
				continue // already satisfied
			}
			selected[provider.Name] = *provider
			queue = append(queue, *provider)
		}
	}

	out := make([]PackageInfo, 0, len(selected))
	for _, p := range selected {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func buildProviderIndex(all []PackageInfo) map[string][]PackageInfo {
	providers := make(map[string][]PackageInfo)
	for _, p := range all {
		for _, capability := range p.Provides {
			providers[capability] = append(providers[capability], p)
		}
		// A package always provides its own name
		providers[p.Name] = append(providers[p.Name], p)
	}
	return providers
}

// pickProvider returns the package to add for a capability, nil when a
// selected package already provides it, or an error when nothing does.
func pickProvider(capability string, providers map[string][]PackageInfo, selected map[string]PackageInfo) (*PackageInfo, error) {
	candidates := providers[capability]
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no package provides %q", capability)
	}

	for _, c := range candidates {
		if _, ok := selected[c.Name]; ok {
			return nil, nil
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Name > best.Name {
			best = c
		}
	}
	return &best, nil
}
