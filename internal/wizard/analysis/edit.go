// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/models"
)

// ErrInvalidPath is returned for edit paths that do not address an editable field
var ErrInvalidPath = errors.New("invalid field path")

var editableLeaves = map[string]bool{
	"buildTool":        true,
	"javaVersion":      true,
	"workingDirectory": true,
	"language":         true,
	"databaseType":     true,
	"databaseName":     true,
}

func checkPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	if len(parts) >= 2 && parts[len(parts)-2] == "projectDetails" {
		return parts, nil
	}
	if !editableLeaves[parts[len(parts)-1]] {
		return nil, fmt.Errorf("%w: %q is not editable", ErrInvalidPath, path)
	}
	return parts, nil
}

func toTree(a *models.AnalysisResult) (map[string]interface{}, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("error encoding analysis: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("error decoding analysis: %w", err)
	}
	return tree, nil
}

func fromTree(tree map[string]interface{}) (*models.AnalysisResult, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("error encoding analysis: %w", err)
	}
	var a models.AnalysisResult
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("error decoding analysis: %w", err)
	}
	return &a, nil
}

func child(node interface{}, key string) (interface{}, bool) {
	switch n := node.(type) {
	case map[string]interface{}:
		v, ok := n[key]
		return v, ok && v != nil
	case []interface{}:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return nil, false
		}
		return n[i], n[i] != nil
	}
	return nil, false
}

// Clone deep-copies an analysis
func Clone(a *models.AnalysisResult) (*models.AnalysisResult, error) {
	tree, err := toTree(a)
	if err != nil {
		return nil, err
	}
	return fromTree(tree)
}

// SetField returns a copy of a with the value at path replaced. Top-level
// databaseType and databaseName are set directly; a missing projectDetails
// is created; any other missing segment is an error and a is untouched.
func SetField(a *models.AnalysisResult, path, value string) (*models.AnalysisResult, error) {
	parts, err := checkPath(path)
	if err != nil {
		return nil, err
	}
	tree, err := toTree(a)
	if err != nil {
		return nil, err
	}

	if path == "databaseType" || path == "databaseName" {
		tree[path] = value
		return fromTree(tree)
	}

	var current interface{} = tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := child(current, part)
		if !ok {
			m, isMap := current.(map[string]interface{})
			if part != "projectDetails" || !isMap {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
			}
			next = map[string]interface{}{}
			m[part] = next
		}
		current = next
	}

	m, ok := current.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	m[parts[len(parts)-1]] = value
	return fromTree(tree)
}

// GetField reads the string at path
func GetField(a *models.AnalysisResult, path string) (string, error) {
	parts, err := checkPath(path)
	if err != nil {
		return "", err
	}
	tree, err := toTree(a)
	if err != nil {
		return "", err
	}

	var current interface{} = tree
	for _, part := range parts {
		next, ok := child(current, part)
		if !ok {
			return "", nil
		}
		current = next
	}
	s, _ := current.(string)
	return s, nil
}
