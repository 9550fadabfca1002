// Package statusdb implements the installed-tree status database
// (spec.md §4.4): an append-only log of StatusParagraphs, listfile
// construction/reversal, and conflict detection. It is grounded on
// status.go's own status-paragraph model generalized from the Go
// import-graph case (one paragraph per imported project) to the
// vcpkg case (one paragraph per installed PackageSpec+feature), and on
// paragraph.Paragraph for the underlying text grammar.
package statusdb

import (
	"fmt"
	"strconv"

	"github.com/microsoft/vcpkg-tool-sub005/paragraph"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// State is the install-state field of a StatusParagraph (spec.md
// §4.4.3's "half-installed" crash-recovery marker).
type State string

const (
	StateNotInstalled  State = "not-installed"
	StateHalfInstalled State = "half-installed"
	StateInstalled     State = "installed"
)

// StatusParagraph is the typed view of one paragraph.Paragraph record
// in the status log: which (PackageSpec, feature) is in which state,
// at which version, with which dependency list and ABI tag.
type StatusParagraph struct {
	Spec       portspec.PackageSpec
	Feature    string // "" or "core" for the core paragraph
	Version    pkgver.SchemedVersion
	State      State
	Depends    []string // "<name>:<triplet>" or "<name>[<feature>]:<triplet>" strings
	AbiTag     string
	WantRemove bool // Want field's "purge"/"deinstall", see spec.md §4.4.3

	// extra preserves any field this type doesn't model by name, so a
	// round trip through Encode never drops unrecognized data (spec.md
	// §6's forward-compatibility requirement).
	extra []paragraph.Field
}

const (
	fieldPackage      = "Package"
	fieldFeature      = "Feature"
	fieldVersion      = "Version"
	fieldPortVersion  = "Port-Version"
	fieldArchitecture = "Architecture"
	fieldStatus       = "Status"
	fieldWant         = "Want"
	fieldDepends      = "Depends"
	fieldAbiTag       = "Abi"
)

var modeledFields = map[string]bool{
	fieldPackage: true, fieldFeature: true, fieldVersion: true,
	fieldPortVersion: true, fieldArchitecture: true, fieldStatus: true,
	fieldWant: true, fieldDepends: true, fieldAbiTag: true,
}

// key identifies the (spec, feature) slot a paragraph occupies; later
// paragraphs for the same key override earlier ones during collapse
// (spec.md §4.4.2).
func (sp StatusParagraph) key() string {
	if sp.Feature == "" || sp.Feature == portspec.CoreFeature {
		return sp.Spec.String()
	}
	return fmt.Sprintf("%s:%s", sp.Spec.String(), sp.Feature)
}

func (sp StatusParagraph) toParagraph() *paragraph.Paragraph {
	p := paragraph.New()
	p.Set(fieldPackage, sp.Spec.Name)
	if sp.Feature != "" && sp.Feature != portspec.CoreFeature {
		p.Set(fieldFeature, sp.Feature)
	}
	p.Set(fieldVersion, sp.Version.Version.Text)
	p.Set(fieldPortVersion, strconv.Itoa(sp.Version.Version.PortVersion))
	p.Set(fieldArchitecture, sp.Spec.Triplet.String())
	p.Set(fieldStatus, string(sp.State))
	if sp.WantRemove {
		p.Set(fieldWant, "deinstall")
	}
	if len(sp.Depends) > 0 {
		joined := ""
		for i, d := range sp.Depends {
			if i > 0 {
				joined += ", "
			}
			joined += d
		}
		p.Set(fieldDepends, joined)
	}
	if sp.AbiTag != "" {
		p.Set(fieldAbiTag, sp.AbiTag)
	}
	for _, f := range sp.extra {
		p.Set(f.Key, f.Value)
	}
	return p
}

func statusParagraphFromParagraph(p *paragraph.Paragraph) (StatusParagraph, error) {
	name, ok := p.Get(fieldPackage)
	if !ok {
		return StatusParagraph{}, fmt.Errorf("statusdb: paragraph missing %s field", fieldPackage)
	}
	archText, ok := p.Get(fieldArchitecture)
	if !ok {
		return StatusParagraph{}, fmt.Errorf("statusdb: paragraph for %s missing %s field", name, fieldArchitecture)
	}
	trip, err := triplet.Parse(archText)
	if err != nil {
		return StatusParagraph{}, fmt.Errorf("statusdb: paragraph for %s: %w", name, err)
	}

	versionText, _ := p.Get(fieldVersion)
	portVersionText, _ := p.Get(fieldPortVersion)
	portVersion, _ := strconv.Atoi(portVersionText)

	sp := StatusParagraph{
		Spec:    portspec.PackageSpec{Name: name, Triplet: trip},
		Feature: portspec.CoreFeature,
		Version: pkgver.SchemedVersion{
			Scheme:  pkgver.SchemeRelaxed,
			Version: pkgver.Version{Text: versionText, PortVersion: portVersion},
		},
	}
	if feature, ok := p.Get(fieldFeature); ok {
		sp.Feature = feature
	}
	if status, ok := p.Get(fieldStatus); ok {
		sp.State = State(status)
	}
	if want, ok := p.Get(fieldWant); ok {
		sp.WantRemove = want == "deinstall" || want == "purge"
	}
	if depends, ok := p.Get(fieldDepends); ok && depends != "" {
		sp.Depends = splitCommaList(depends)
	}
	if abi, ok := p.Get(fieldAbiTag); ok {
		sp.AbiTag = abi
	}

	for _, f := range p.Fields() {
		if !modeledFields[f.Key] {
			sp.extra = append(sp.extra, f)
		}
	}
	return sp, nil
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, trimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, trimSpace(s[start:]))
	var filtered []string
	for _, item := range out {
		if item != "" {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
