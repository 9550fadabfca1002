package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/microsoft/vcpkg-tool-sub005/paragraph"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/platformexpr"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// parseControlFile reads a CONTROL-format port description (spec.md §6's
// paragraph grammar, core fields only — feature paragraphs are separate
// records sharing the same file, matching original_source's
// paragraphs.h multi-record CONTROL format) into a SourceControlFile.
func parseControlFile(text string) (*portspec.SourceControlFile, error) {
	paragraphs, err := paragraph.ParseAllString(text)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("controlfile: empty control file")
	}

	core := paragraphs[0]
	name, ok := core.Get("Source")
	if !ok {
		return nil, fmt.Errorf("controlfile: missing required field Source")
	}
	versionText, ok := core.Get("Version")
	if !ok {
		return nil, fmt.Errorf("controlfile: missing required field Version")
	}
	scheme := pkgver.SchemeRelaxed
	if s, ok := core.Get("Version-Scheme"); ok {
		scheme = pkgver.Scheme(s)
	}
	portVersion := 0
	if pv, ok := core.Get("Port-Version"); ok {
		n, err := strconv.Atoi(pv)
		if err != nil {
			return nil, fmt.Errorf("controlfile: malformed Port-Version %q: %w", pv, err)
		}
		portVersion = n
	}

	deps, err := parseDependencyList(firstOr(core, "Build-Depends"))
	if err != nil {
		return nil, fmt.Errorf("controlfile: parsing Build-Depends: %w", err)
	}

	defaultFeatures := splitCommaList(firstOr(core, "Default-Features"))

	supports := platformexpr.Expr{}
	if s := firstOr(core, "Supports"); s != "" {
		supports, err = platformexpr.Parse(s, platformexpr.AllowMultipleBinaryOperators)
		if err != nil {
			return nil, fmt.Errorf("controlfile: parsing Supports: %w", err)
		}
	}

	scf := &portspec.SourceControlFile{
		Name: name,
		Version: pkgver.SchemedVersion{
			Scheme:  scheme,
			Version: pkgver.Version{Text: versionText, PortVersion: portVersion},
		},
		Dependencies:    deps,
		DefaultFeatures: defaultFeatures,
		License:         firstOr(core, "License"),
		Supports:        supports,
		Features:        make(map[string]portspec.FeaturePackage),
	}

	for _, fp := range paragraphs[1:] {
		fname, ok := fp.Get("Feature")
		if !ok {
			return nil, fmt.Errorf("controlfile: feature paragraph missing Feature field")
		}
		fdeps, err := parseDependencyList(firstOr(fp, "Build-Depends"))
		if err != nil {
			return nil, fmt.Errorf("controlfile: parsing feature %s Build-Depends: %w", fname, err)
		}
		fsupports := platformexpr.Expr{}
		if s := firstOr(fp, "Supports"); s != "" {
			fsupports, err = platformexpr.Parse(s, platformexpr.AllowMultipleBinaryOperators)
			if err != nil {
				return nil, fmt.Errorf("controlfile: parsing feature %s Supports: %w", fname, err)
			}
		}
		scf.Features[fname] = portspec.FeaturePackage{
			Dependencies: fdeps,
			Description:  firstOr(fp, "Description"),
			Supports:     fsupports,
		}
	}

	return scf, nil
}

func firstOr(p *paragraph.Paragraph, key string) string {
	v, _ := p.Get(key)
	return v
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDependencyList parses a comma-separated Build-Depends field, each
// item of the form "name[feat1,feat2] (platform-expr)" with an optional
// leading "host:" qualifier, following CONTROL-format conventions.
func parseDependencyList(s string) ([]portspec.Dependency, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	items := splitTopLevelComma(s)
	deps := make([]portspec.Dependency, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		d, err := parseOneDependency(item)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// splitTopLevelComma splits on commas that are not inside [] or ().
func splitTopLevelComma(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseOneDependency(item string) (portspec.Dependency, error) {
	d := portspec.Dependency{}

	item = strings.TrimSpace(item)
	if strings.HasPrefix(item, "host:") {
		d.Host = true
		item = strings.TrimPrefix(item, "host:")
	}

	platformStart := strings.Index(item, "(")
	if platformStart >= 0 {
		if !strings.HasSuffix(item, ")") {
			return d, fmt.Errorf("malformed platform gate in dependency %q", item)
		}
		gate := item[platformStart+1 : len(item)-1]
		expr, err := platformexpr.Parse(gate, platformexpr.AllowMultipleBinaryOperators)
		if err != nil {
			return d, fmt.Errorf("parsing platform gate %q: %w", gate, err)
		}
		d.PlatformGate = expr
		item = strings.TrimSpace(item[:platformStart])
	}

	featStart := strings.Index(item, "[")
	if featStart >= 0 {
		if !strings.HasSuffix(item, "]") {
			return d, fmt.Errorf("malformed feature list in dependency %q", item)
		}
		d.Name = strings.TrimSpace(item[:featStart])
		d.Features = splitCommaList(item[featStart+1 : len(item)-1])
	} else {
		d.Name = item
	}
	if d.Name == "" {
		return d, fmt.Errorf("dependency with empty name in %q", item)
	}
	return d, nil
}
