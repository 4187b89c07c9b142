// Package yaml provides utility functions for working with YAML files.
package yaml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
	yamlLib "gopkg.in/yaml.v3"
)

const Version = "testengine.io/v1"

// Doc is the envelope of every document the engine writes to disk.
type Doc struct {
	Version string       `json:"version" yaml:"version"`
	Kind    string       `json:"kind" yaml:"kind"`
	Name    string       `json:"name" yaml:"name"`
	Spec    yamlLib.Node `json:"spec" yaml:"spec"`
}

// NewDoc encodes spec into a Doc of the given kind.
func NewDoc(kind, name string, spec any) (*Doc, error) {
	doc := &Doc{Version: Version, Kind: kind, Name: name}
	if err := doc.Spec.Encode(spec); err != nil {
		return nil, fmt.Errorf("failed to encode %s %q: %w", kind, name, err)
	}
	return doc, nil
}

// ContextReader wraps an io.Reader with a context for cancellation support
type ContextReader struct {
	Reader io.Reader
	Ctx    context.Context
}

// Read implements the io.Reader interface for ContextReader
func (cr *ContextReader) Read(p []byte) (n int, err error) {
	select {
	case <-cr.Ctx.Done():
		return 0, cr.Ctx.Err()
	default:
		return cr.Reader.Read(p)
	}
}

// WriteFile replaces <path>/<fileName>.yaml with docData.
func WriteFile(ctx context.Context, logger *zap.Logger, path, fileName string, docData []byte) error {
	if _, err := CreateYamlFile(ctx, logger, path, fileName); err != nil {
		return err
	}
	yamlPath := filepath.Join(path, fileName+".yaml")
	tmp := yamlPath + ".tmp"
	if err := os.WriteFile(tmp, docData, 0o644); err != nil {
		utils.LogError(logger, err, "failed to write the yaml document", zap.String("yaml file name", fileName))
		return err
	}
	if err := os.Rename(tmp, yamlPath); err != nil {
		utils.LogError(logger, err, "failed to replace the yaml document", zap.String("yaml file name", fileName))
		return err
	}
	return nil
}

func ReadFile(ctx context.Context, logger *zap.Logger, path, name string) ([]byte, error) {
	filePath, err := ValidatePath(filepath.Join(path, name+".yaml"))
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			utils.LogError(logger, err, "failed to close the yaml file", zap.String("path", filePath))
		}
	}()
	cr := &ContextReader{Reader: file, Ctx: ctx}
	data, err := io.ReadAll(cr)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read the file: %w", err)
	}
	return data, nil
}

// CreateYamlFile creates the directory and an empty file when missing. It
// reports whether the file was created.
func CreateYamlFile(_ context.Context, logger *zap.Logger, path string, fileName string) (bool, error) {
	yamlPath, err := ValidatePath(filepath.Join(path, fileName+".yaml"))
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(yamlPath); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(path, fs.ModePerm); err != nil {
		utils.LogError(logger, err, "failed to create a directory for the yaml file", zap.String("path directory", path), zap.String("yaml", fileName))
		return false, err
	}
	file, err := os.OpenFile(yamlPath, os.O_CREATE, 0o644)
	if err != nil {
		utils.LogError(logger, err, "failed to create a yaml file", zap.String("path directory", path), zap.String("yaml", fileName))
		return false, err
	}
	_ = file.Close()
	return true, nil
}

func FileExists(path, fileName string) (bool, error) {
	yamlPath, err := ValidatePath(filepath.Join(path, fileName+".yaml"))
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(yamlPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func DeleteFile(_ context.Context, logger *zap.Logger, path, name string) error {
	filePath, err := ValidatePath(filepath.Join(path, name+".yaml"))
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		utils.LogError(logger, err, "failed to delete the yaml file", zap.String("path", filePath))
		return err
	}
	return nil
}

// ListNames returns the sorted base names of the .yaml files under path.
func ListNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// ValidatePath cleans path and rejects traversal outside of it.
func ValidatePath(path string) (string, error) {
	if strings.Contains(path, "\x00") {
		return "", errors.New("invalid path: contains null byte")
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid path %q: traversal is not allowed", path)
		}
	}
	return cleaned, nil
}

// ReadDoc reads <path>/<name>.yaml as a Doc. A missing or empty file yields nil.
func ReadDoc(ctx context.Context, logger *zap.Logger, path, name string) (*Doc, error) {
	exists, err := FileExists(path, name)
	if err != nil || !exists {
		return nil, err
	}
	data, err := ReadFile(ctx, logger, path, name)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var doc Doc
	if err := yamlLib.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return &doc, nil
}

// WriteDoc marshals doc to <path>/<doc.Name>.yaml.
func WriteDoc(ctx context.Context, logger *zap.Logger, path string, doc *Doc) error {
	data, err := yamlLib.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", doc.Name, err)
	}
	return WriteFile(ctx, logger, path, doc.Name, data)
}
