// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"regexp"
	"strings"

	"github.com/kusari-oss/deploymate/internal/core/models"
)

// Allowed values accepted by the backend
var (
	JavaOptions    = []string{"8", "11", "17", "21"}
	BuildTools     = []string{"Maven", "Gradle", "npm"}
	DatabaseTypes  = []string{"PostgreSQL", "MySQL", "MongoDB", "H2", models.NotDetected, "Detected (Spring Boot with JPA)"}
	NodeFrameworks = []string{"React", "Vue.js", "Angular", "Express.js", "Next.js", "Vanilla Node.js"}
)

// DefaultDatabaseName is sent when the analysis names no database
const DefaultDatabaseName = "my_database"

var nodeVersionRe = regexp.MustCompile(`^\d+(\.\d+)*$`)

// orND returns v, or the NONE sentinel when v is empty
func orND(v string) string {
	if v == "" {
		return models.NotDetected
	}
	return v
}

// IsND reports whether v is empty or the NONE sentinel
func IsND(v string) bool {
	return v == "" || v == models.NotDetected
}

// CanonBuildTool maps maven/gradle/npm in any case to the backend spelling;
// anything else is returned unchanged.
func CanonBuildTool(v string) string {
	switch strings.ToLower(v) {
	case "maven":
		return "Maven"
	case "gradle":
		return "Gradle"
	case "npm":
		return "npm"
	}
	return v
}

func allowed(v string, options []string) string {
	for _, o := range options {
		if v == o {
			return v
		}
	}
	return ""
}

// CanonJava keeps supported Java versions, dropping anything else
func CanonJava(v string) string { return allowed(v, JavaOptions) }

// CanonDBType keeps known database types
func CanonDBType(v string) string { return allowed(v, DatabaseTypes) }

// CanonFramework keeps known Node.js frameworks
func CanonFramework(v string) string { return allowed(v, NodeFrameworks) }

// CanonNodeVersion keeps "Latest" or dotted numeric versions
func CanonNodeVersion(v string) string {
	if v == "Latest" || nodeVersionRe.MatchString(v) {
		return v
	}
	return ""
}

// AllowedBuildTools returns the build tools offered for a stack
func AllowedBuildTools(stackType string) []string {
	switch {
	case strings.Contains(stackType, "SPRING_BOOT"):
		return []string{"Maven", "Gradle"}
	case stackType == "NODE_JS":
		return []string{"npm"}
	}
	return BuildTools
}

// NormalizeService replaces missing values with the NONE sentinel
func NormalizeService(s models.ServiceDescriptor) models.ServiceDescriptor {
	out := s
	out.ID = orND(s.ID)
	out.StackType = orND(s.StackType)
	out.BuildTool = orND(s.BuildTool)
	out.WorkingDirectory = orND(s.WorkingDirectory)
	out.JavaVersion = orND(s.JavaVersion)
	out.Language = orND(s.Language)
	out.DatabaseType = orND(s.DatabaseType)
	out.DatabaseName = orND(s.DatabaseName)

	details := make(map[string]interface{}, len(s.ProjectDetails)+3)
	for k, v := range s.ProjectDetails {
		details[k] = v
	}
	for _, key := range []string{"springBootVersion", "framework", "nodeVersion"} {
		details[key] = orND(s.Detail(key))
	}
	out.ProjectDetails = details
	return out
}
