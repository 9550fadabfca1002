package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/plan"
)

// NugetReference names a feed package the way original_source's
// make_nugetref does: an id built from an operator-chosen prefix plus
// the triplet-qualified port name, and a version reformatted to fold
// the ABI tag in so every build gets a distinct, feed-legal version
// string.
type NugetReference struct {
	ID      string
	Version string
}

func (r NugetReference) Filename() string {
	return fmt.Sprintf("%s.%s.nupkg", r.ID, r.Version)
}

// reformatVersion folds abiTag into version the way
// original_source/src/binarycaching.cpp's reformat_version does:
// a raw version with anything but digits and dots (or an empty one) is
// replaced by "0.0.0", and the first 16 characters of the tag are
// appended as a "-vcpkg<tag>" suffix.
func reformatVersion(version, abiTag string) string {
	clean := version
	for _, r := range clean {
		if !(r >= '0' && r <= '9') && r != '.' {
			clean = "0.0.0"
			break
		}
	}
	if clean == "" {
		clean = "0.0.0"
	}
	tag := abiTag
	if len(tag) > 16 {
		tag = tag[:16]
	}
	return fmt.Sprintf("%s-vcpkg%s", clean, tag)
}

func MakeNugetRef(action *plan.InstallPlanAction, prefix string) NugetReference {
	name := action.Spec.String()
	name = strings.NewReplacer(":", "-", "/", "-").Replace(name)
	version := ""
	if action.SourceControlFile != nil {
		version = action.SourceControlFile.Version.Version.Text
	}
	return NugetReference{
		ID:      prefix + name,
		Version: reformatVersion(version, action.AbiTag),
	}
}

var nuspecTemplate = template.Must(template.New("nuspec").Parse(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>{{.ID}}</id>
    <version>{{.Version}}</version>
    <authors>vcpkg</authors>
    <description>{{.Description}}</description>
  </metadata>
</package>
`))

type nuspecVars struct {
	ID, Version, Description string
}

// GenerateNuspec renders the minimal nuspec document for ref, mirroring
// original_source's generate_nuspec without its repo-info telemetry
// block (telemetry is out of scope).
func GenerateNuspec(ref NugetReference, description string) (string, error) {
	var sb strings.Builder
	if err := nuspecTemplate.Execute(&sb, nuspecVars{ID: ref.ID, Version: ref.Version, Description: description}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FeedConfig is the operator-supplied configuration for a NuGet-style
// feed backend, loaded from TOML the way the teacher's manifest.go
// loads project manifests with pelletier/go-toml.
type FeedConfig struct {
	FeedDir  string `toml:"feed_dir"`
	IDPrefix string `toml:"id_prefix"`
}

func LoadFeedConfig(path string) (FeedConfig, error) {
	var cfg FeedConfig
	tree, err := toml.LoadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "loading nuget feed config %s", path)
	}
	if err := tree.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decoding nuget feed config")
	}
	return cfg, nil
}

// FeedBackend is a filesystem-backed NuGet-like feed: packages are
// .nupkg zip archives named by NugetReference.Filename of refForTag, so
// each ABI tag maps to the exact file "<prefix>abi.<tag>.nupkg" in
// FeedDir; no globbing is done.
type FeedBackend struct {
	cfg FeedConfig
}

func NewFeedBackend(cfg FeedConfig) *FeedBackend {
	return &FeedBackend{cfg: cfg}
}

func (b *FeedBackend) Kind() string { return "nuget-feed" }

func (b *FeedBackend) pathFor(ref NugetReference) string {
	return filepath.Join(b.cfg.FeedDir, ref.Filename())
}

// refForTag is a degenerate reference used purely for path lookup: the
// feed backend is keyed the same way as every other backend, by ABI
// tag, so it stores with a reference whose version IS the tag.
func refForTag(prefix, abi string) NugetReference {
	return NugetReference{ID: prefix + "abi", Version: abi}
}

func (b *FeedBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	out := make([]bool, len(abis))
	for i, abi := range abis {
		if _, err := os.Stat(b.pathFor(refForTag(b.cfg.IDPrefix, abi))); err == nil {
			out[i] = true
		}
	}
	return out, nil
}

func (b *FeedBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	path := b.pathFor(refForTag(b.cfg.IDPrefix, abi))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := extractZip(path, destDir); err != nil {
		return false, errors.Wrapf(err, "extracting nupkg %s", path)
	}
	return true, nil
}

func (b *FeedBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	if err := os.MkdirAll(b.cfg.FeedDir, 0o755); err != nil {
		return err
	}
	path := b.pathFor(refForTag(b.cfg.IDPrefix, abi))
	return createZip(srcDir, path)
}
