package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// CLIBackend shells out to a cloud object-store CLI (gsutil, aws s3, az
// storage) the way the teacher's vcs_repo.go shells out to "git"/"hg"/
// "bzr" binaries rather than linking a library per provider: one
// generalized exec.CommandContext wrapper parameterized by argv
// templates, instead of three separate cloud SDKs.
type CLIBackend struct {
	// Program is the executable name, e.g. "aws", "gsutil", "az".
	Program string
	// RemotePrefix is prepended to the object key, e.g. "s3://bucket/cache".
	RemotePrefix string
	// ExistsArgsTemplate, DownloadArgsTemplate and UploadArgsTemplate
	// build argv; Program is the implied first element and is not part of
	// these templates. Each %s is substituted positionally, in template
	// order: (remoteURL, localPath) for downloads, (localPath, remoteURL)
	// for uploads, remoteURL alone for exists checks.
	ExistsArgsTemplate   []string
	DownloadArgsTemplate []string
	UploadArgsTemplate   []string
}

// NewS3CLIBackend configures a CLIBackend for the AWS CLI's "s3" family,
// the most common of the cloud-CLI shapes this backend generalizes.
func NewS3CLIBackend(bucketPrefix string) *CLIBackend {
	return &CLIBackend{
		Program:              "aws",
		RemotePrefix:         bucketPrefix,
		ExistsArgsTemplate:   []string{"s3", "ls", "%s"},
		DownloadArgsTemplate: []string{"s3", "cp", "%s", "%s"},
		UploadArgsTemplate:   []string{"s3", "cp", "%s", "%s"},
	}
}

func (b *CLIBackend) Kind() string { return "cli:" + b.Program }

func (b *CLIBackend) remoteURL(abi string) string {
	return strings.TrimRight(b.RemotePrefix, "/") + "/" + abi + ".zip"
}

func expandArgs(tmpl []string, subs ...string) []string {
	out := make([]string, 0, len(tmpl))
	next := 0
	for _, t := range tmpl {
		if n := strings.Count(t, "%s"); n > 0 {
			args := make([]interface{}, 0, n)
			for ; n > 0 && next < len(subs); n-- {
				args = append(args, subs[next])
				next++
			}
			out = append(out, fmt.Sprintf(t, args...))
		} else {
			out = append(out, t)
		}
	}
	return out
}

func (b *CLIBackend) run(ctx context.Context, argv []string) (stdout string, err error) {
	cmd := exec.CommandContext(ctx, b.Program, argv...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return out.String(), errors.Wrapf(err, "%s %s: %s", b.Program, strings.Join(argv, " "), errBuf.String())
	}
	return out.String(), nil
}

func (b *CLIBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	out := make([]bool, len(abis))
	for i, abi := range abis {
		argv := expandArgs(b.ExistsArgsTemplate, b.remoteURL(abi))
		_, err := b.run(ctx, argv)
		out[i] = err == nil
	}
	return out, nil
}

func (b *CLIBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	tmp, err := os.CreateTemp("", "vcpkg-cli-cache-*.zip")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	argv := expandArgs(b.DownloadArgsTemplate, b.remoteURL(abi), tmpPath)
	if _, err := b.run(ctx, argv); err != nil {
		return false, nil
	}
	if err := extractZip(tmpPath, destDir); err != nil {
		return false, errors.Wrap(err, "extracting downloaded archive")
	}
	return true, nil
}

func (b *CLIBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	tmp, err := os.CreateTemp("", "vcpkg-cli-cache-*.zip")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := createZip(srcDir, tmpPath); err != nil {
		return errors.Wrap(err, "archiving for upload")
	}
	argv := expandArgs(b.UploadArgsTemplate, tmpPath, b.remoteURL(abi))
	_, err = b.run(ctx, argv)
	return err
}
