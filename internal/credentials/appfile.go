package credentials

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// appfileCandidates are checked relative to the working directory.
var appfileCandidates = []string{
	filepath.Join("fastlane", "Appfile"),
	filepath.Join(".fastlane", "Appfile"),
	"Appfile",
}

var appfileValueRe = regexp.MustCompile(`^\s*([a-z_]+)\s*\(?\s*["']([^"']+)["']`)

// AppfileValues returns the top-level string settings of the first Appfile
// found, e.g. apple_id and apple_dev_portal_id. for_lane/for_platform
// overrides are ignored; the first assignment of each key wins.
func AppfileValues(dir string) map[string]string {
	for _, candidate := range appfileCandidates {
		path := filepath.Join(dir, candidate)
		values, err := parseAppfile(path)
		if err == nil {
			return values
		}
	}
	return nil
}

func parseAppfile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	depth := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, " do") || strings.Contains(line, " do |") {
			depth++
			continue
		}
		if line == "end" {
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		m := appfileValueRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if _, exists := values[m[1]]; !exists {
			values[m[1]] = m[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
