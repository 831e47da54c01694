// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"fmt"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/kusari-oss/deploymate/internal/core/schema"
)

func serviceFields(prefix string, s models.ServiceDescriptor, out map[string]string) {
	put := func(key, v string) {
		if !IsND(v) {
			out[prefix+key] = v
		}
	}

	put("buildTool", CanonBuildTool(s.BuildTool))
	if strings.Contains(s.StackType, "SPRING_BOOT") {
		put("javaVersion", CanonJava(s.JavaVersion))
	}
	put("workingDirectory", s.WorkingDirectory)
	put("language", s.Language)

	if s.ProjectDetails != nil {
		put("projectDetails.springBootVersion", s.Detail("springBootVersion"))
		put("projectDetails.framework", CanonFramework(s.Detail("framework")))
		put("projectDetails.nodeVersion", CanonNodeVersion(s.Detail("nodeVersion")))
	}
}

func databaseFields(prefix, dbType, dbName string, out map[string]string) {
	if t := CanonDBType(dbType); !IsND(t) {
		out[prefix+"databaseType"] = t
	}
	if dbName == "" {
		dbName = DefaultDatabaseName
	}
	if !IsND(dbName) {
		out[prefix+"databaseName"] = dbName
	}
}

// BuildPayload flattens an analysis into the path→value map accepted by
// update-parameters. Values that canonicalize to empty or NONE are left out.
func BuildPayload(a *models.AnalysisResult) map[string]string {
	out := map[string]string{}
	switch {
	case a == nil:
	case a.IsMulti():
		for i, s := range a.Services {
			serviceFields(fmt.Sprintf("services.%d.", i), s, out)
		}
		databaseFields("", a.DatabaseType, a.DatabaseName, out)
	case a.Analysis != nil:
		serviceFields("analysis.", *a.Analysis, out)
		databaseFields("analysis.", a.Analysis.DatabaseType, a.Analysis.DatabaseName, out)
	}
	return out
}

// payloadSchema constrains every key the payload may carry
func payloadSchema() map[string]interface{} {
	leaf := func(key string) map[string]interface{} {
		switch key {
		case "javaVersion":
			return schema.Enum(JavaOptions...)
		case "databaseType":
			return schema.Enum(DatabaseTypes...)
		case "projectDetails.framework":
			return schema.Enum(NodeFrameworks...)
		case "projectDetails.nodeVersion":
			return schema.Pattern(`^(Latest|\d+(\.\d+)*)$`)
		}
		return schema.NonEmpty()
	}

	keys := []string{
		"buildTool", "javaVersion", "workingDirectory", "language", "databaseType", "databaseName",
		"projectDetails.springBootVersion", "projectDetails.framework", "projectDetails.nodeVersion",
	}
	patterns := map[string]interface{}{}
	props := map[string]interface{}{
		"databaseType": leaf("databaseType"),
		"databaseName": leaf("databaseName"),
	}
	for _, k := range keys {
		escaped := strings.ReplaceAll(k, ".", `\.`)
		patterns[`^services\.\d+\.`+escaped+`$`] = leaf(k)
		props["analysis."+k] = leaf(k)
	}

	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"patternProperties":    patterns,
		"additionalProperties": false,
	}
}

// ValidatePayload checks a payload before it is sent
func ValidatePayload(payload map[string]string) error {
	return schema.ValidateParams(payloadSchema(), payload)
}
