// Package labels loads the ordered class names a model's outputs map to.
package labels

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

// LabelSet maps output index i to a class name. It is never modified after
// loading and may be shared freely.
type LabelSet []string

// Load reads the label file at path. A .json path is read as model metadata
// and its classes are used; anything else is one label per line.
func Load(path string) (LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ResourceLoadError{Resource: path, Cause: err}
	}
	defer f.Close()

	var set LabelSet
	if strings.EqualFold(filepath.Ext(path), ".json") {
		set, err = parseMetadata(f)
	} else {
		set, err = Parse(f)
	}
	if err != nil {
		return nil, &model.ResourceLoadError{Resource: path, Cause: err}
	}

	log.Info().Msgf("Loaded %d labels from %s", len(set), path)
	return set, nil
}

// Parse reads newline-delimited labels, keeping their order. Trailing blank
// lines are ignored; a blank line before the last label is an error because
// it would shift every later index.
func Parse(r io.Reader) (LabelSet, error) {
	var (
		set    LabelSet
		blanks int
		line   int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			blanks++
			continue
		}
		if blanks > 0 {
			return nil, fmt.Errorf("blank line before label %q at line %d", text, line)
		}
		set = append(set, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no labels found")
	}
	return set, nil
}

func parseMetadata(r io.Reader) (LabelSet, error) {
	var metadata model.Metadata
	if err := json.NewDecoder(r).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("metadata has no classes")
	}
	for i, c := range metadata.Classes {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("class %d is empty", i)
		}
	}
	return LabelSet(metadata.Classes), nil
}

// Len is the number of labels.
func (s LabelSet) Len() int {
	return len(s)
}
