// Package report writes heatmap payloads as browsable HTML artifacts.
//
// Every call to [Write] allocates a fresh directory named by a random UUID
// under the scratch directory. Files are written into a hidden staging
// directory next to it and the staging directory is renamed into place once
// complete, so a reader never observes a partial artifact.
//
// Dendrogram payloads produce a single self-contained HTML document with the
// figure inlined as SVG. Plain payloads keep the historical two-file layout:
// an HTML document plus a sibling heatmap_data_<uuid>.json data object that
// the page links to.
package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/heatmap"
)

// DefaultTitle is used when Options.Title is empty.
const DefaultTitle = "Heatmap"

const (
	reportPrefix = "heatmap_report_"
	dataPrefix   = "heatmap_data_"
	stageSuffix  = ".partial"
)

// Options configures the written report.
type Options struct {
	Title string `json:"title,omitempty"`
	// Summary is markdown rendered above the figure.
	Summary string `json:"summary,omitempty"`
}

func (o Options) title() string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return DefaultTitle
}

// Write renders p into a new directory under scratch and returns its path.
func Write(scratch string, p heatmap.Payload, opts Options) (string, error) {
	if err := errors.ValidateFilePath(scratch); err != nil {
		return "", err
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "create scratch directory")
	}

	id := uuid.NewString()
	final := filepath.Join(scratch, id)
	stage := filepath.Join(scratch, "."+id+stageSuffix)
	if err := os.Mkdir(stage, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, err, "create staging directory")
	}

	if err := writeFiles(stage, p, opts); err != nil {
		_ = os.RemoveAll(stage)
		return "", err
	}
	if err := os.Rename(stage, final); err != nil {
		_ = os.RemoveAll(stage)
		return "", errors.Wrap(errors.ErrCodeIO, err, "publish report directory")
	}
	return final, nil
}

func writeFiles(dir string, p heatmap.Payload, opts Options) error {
	var dataFile string
	if !p.HasDendrograms() {
		data, err := RenderJSON(p)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode heatmap data")
		}
		dataFile = dataPrefix + uuid.NewString() + ".json"
		if err := os.WriteFile(filepath.Join(dir, dataFile), data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "write %s", dataFile)
		}
	}

	page, err := RenderHTML(p, opts, dataFile)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "render html")
	}
	name := reportPrefix + uuid.NewString() + ".html"
	if err := errors.ValidateArtifactName(name); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), page, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", name)
	}
	return nil
}

// Files lists the artifact files of a report directory, HTML first.
func Files(dir string) (html string, data string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "read report directory")
	}
	for _, e := range entries {
		switch name := e.Name(); {
		case strings.HasPrefix(name, reportPrefix) && strings.HasSuffix(name, ".html"):
			html = filepath.Join(dir, name)
		case strings.HasPrefix(name, dataPrefix) && strings.HasSuffix(name, ".json"):
			data = filepath.Join(dir, name)
		}
	}
	if html == "" {
		return "", "", errors.New(errors.ErrCodeFileNotFound, "no report in %s", dir)
	}
	return html, data, nil
}

// IsStaging reports whether name is an unfinished staging directory.
func IsStaging(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, stageSuffix)
}

