// Package agentrunner implements the Agent Runner consumed interface
// (spec §6.1): invoking a named agent with instructions and inputs, and
// loading agent/skill definitions from front-matter documents.
package agentrunner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one agent or skill document: a structured front-matter
// header plus a free-form instruction body (spec §6.1).
type Definition struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Model        string   `yaml:"model"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	Capabilities []string `yaml:"capabilities"`
	Category     string   `yaml:"category"`
	Phase        string   `yaml:"phase"`
	Tools        []string `yaml:"tools"`
	Tags         []string `yaml:"tags"`

	Instructions string `yaml:"-"`
	SourcePath   string `yaml:"-"`
}

const frontMatterDelimiter = "---"

// ParseDefinition splits a document into its YAML front-matter and
// instruction body and decodes the header, the same front-matter shape
// the teacher's prompt atoms and campaign prompt files use (YAML header,
// free text body), generalized here to spec §6.1's explicit field list.
func ParseDefinition(raw []byte, sourcePath string) (*Definition, error) {
	header, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, fmt.Errorf("agentrunner: %s: %w", sourcePath, err)
	}

	var def Definition
	if err := yaml.Unmarshal([]byte(header), &def); err != nil {
		return nil, fmt.Errorf("agentrunner: %s: invalid front-matter: %w", sourcePath, err)
	}
	def.Instructions = strings.TrimSpace(body)
	def.SourcePath = sourcePath
	if def.Name == "" {
		return nil, fmt.Errorf("agentrunner: %s: front-matter missing required 'name'", sourcePath)
	}
	return &def, nil
}

// splitFrontMatter separates a leading "---\n...\n---\n" YAML block from
// the remainder of the document.
func splitFrontMatter(raw []byte) (header, body string, err error) {
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return "", "", fmt.Errorf("empty document")
	}
	if strings.TrimSpace(scanner.Text()) != frontMatterDelimiter {
		return "", "", fmt.Errorf("document does not start with a %q front-matter delimiter", frontMatterDelimiter)
	}

	var headerLines, bodyLines []string
	inHeader := true
	for scanner.Scan() {
		line := scanner.Text()
		if inHeader && strings.TrimSpace(line) == frontMatterDelimiter {
			inHeader = false
			continue
		}
		if inHeader {
			headerLines = append(headerLines, line)
		} else {
			bodyLines = append(bodyLines, line)
		}
	}
	if inHeader {
		return "", "", fmt.Errorf("front-matter block never closed")
	}
	return strings.Join(headerLines, "\n"), strings.Join(bodyLines, "\n"), scanner.Err()
}

// LoadDefinitionFile reads and parses one definition document from disk.
func LoadDefinitionFile(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentrunner: reading %s: %w", path, err)
	}
	return ParseDefinition(raw, path)
}

// LoadDefinitionDirectory walks dir for *.md definition documents,
// skipping files that fail to parse (logged by the caller) rather than
// aborting the whole load — the same tolerant-directory-walk discipline
// the teacher's prompt.AtomLoader.LoadFromDirectory uses for its YAML
// atom files.
func LoadDefinitionDirectory(dir string) ([]*Definition, []error) {
	var defs []*Definition
	var errs []error

	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		def, perr := LoadDefinitionFile(path)
		if perr != nil {
			errs = append(errs, perr)
			return nil
		}
		defs = append(defs, def)
		return nil
	})
	return defs, errs
}
