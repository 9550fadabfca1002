package abi

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/vcpkg-tool-sub005/plan"
)

// sbomDocument is a minimal SPDX 2.2 document (spec.md §4.2.4): just
// enough fields to name the port, its declared version, and the
// resources it pulls in by sha-512, each as a File element. The core
// does not need a full SPDX library for this — there is no SPDX
// generator in the teacher or the pack, and the document shape is this
// small and fixed, so encoding/json over a literal struct is the
// simplest faithful representation.
type sbomDocument struct {
	SPDXVersion       string          `json:"spdxVersion"`
	DataLicense       string          `json:"dataLicense"`
	SPDXID            string          `json:"SPDXID"`
	Name              string          `json:"name"`
	DocumentNamespace string          `json:"documentNamespace"`
	CreationInfo      sbomCreation    `json:"creationInfo"`
	Packages          []sbomPackage   `json:"packages"`
	Files             []sbomFile      `json:"files,omitempty"`
	Relationships     []sbomRelation  `json:"relationships"`
}

type sbomCreation struct {
	Creators []string `json:"creators"`
}

type sbomPackage struct {
	Name            string `json:"name"`
	SPDXID          string `json:"SPDXID"`
	VersionInfo     string `json:"versionInfo"`
	DownloadLocation string `json:"downloadLocation"`
}

type sbomFile struct {
	FileName      string            `json:"fileName"`
	SPDXID        string            `json:"SPDXID"`
	Checksums     []sbomChecksum    `json:"checksums"`
}

type sbomChecksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"checksumValue"`
}

type sbomRelation struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
}

// ResourceHash is one fetched source archive referenced by the SBOM,
// keyed by its sha-512 content hash (spec.md §4.2.4).
type ResourceHash struct {
	FileName string
	SHA512   string
}

// BuildSBOM renders the SPDX 2.2 SBOM JSON for a completed build of
// action: one package element (port name and version) that CONTAINS one
// file element per fetched resource archive, checksummed by sha-512.
// Port sources and the portfiles hash are not referenced.
func BuildSBOM(action *plan.InstallPlanAction, resources []ResourceHash) (string, error) {
	pkgID := "SPDXRef-Package-" + action.Spec.Name
	doc := sbomDocument{
		SPDXVersion:       "SPDX-2.2",
		DataLicense:       "CC0-1.0",
		SPDXID:            "SPDXRef-DOCUMENT",
		Name:              action.Spec.String(),
		DocumentNamespace: "https://vcpkg.io/spdx/" + action.Spec.String() + "-" + action.AbiTag,
		CreationInfo:      sbomCreation{Creators: []string{"Tool: vcpkg-core"}},
		Packages: []sbomPackage{{
			Name:             action.Spec.Name,
			SPDXID:           pkgID,
			VersionInfo:      action.SourceControlFile.Version.Version.Text,
			DownloadLocation: "NOASSERTION",
		}},
	}
	for i, r := range resources {
		fileID := fmt.Sprintf("SPDXRef-File-%d", i)
		doc.Files = append(doc.Files, sbomFile{
			FileName:  r.FileName,
			SPDXID:    fileID,
			Checksums: []sbomChecksum{{Algorithm: "SHA512", Value: r.SHA512}},
		})
		doc.Relationships = append(doc.Relationships, sbomRelation{
			SPDXElementID:      pkgID,
			RelationshipType:   "CONTAINS",
			RelatedSPDXElement: fileID,
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
