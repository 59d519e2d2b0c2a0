package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvNames lists extra environments (comma separated) when --env is not
// given, e.g. "ci" loads .env.ci.
const EnvNames = "RETRIEVE_DEVICES_ENV"

var (
	loadOnce    sync.Once
	loadedPaths []string
	loadErr     error

	namesMu  sync.Mutex
	envNames []string
)

// UseEnvironments selects the .env.<name> files loaded on top of .env and
// .env.default. It only has an effect before the first Ensure or lookup.
func UseEnvironments(names string) {
	namesMu.Lock()
	defer namesMu.Unlock()
	envNames = splitNames(names)
}

// Ensure loads the dotenv files of the nearest project directory, found by
// walking up from the working directory. A directory qualifies when it or
// its fastlane/ folder holds .env, .env.default or a selected .env.<name>.
//
// Process variables win over every file; within the files, fastlane/ wins
// over the project root, and .env.<name> over .env over .env.default.
func Ensure() error {
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		dir, err := os.Getwd()
		if err != nil {
			loadErr = errors.Wrap(err, "env: resolve working directory")
			return
		}
		loadedPaths, loadErr = loadDotEnvFiles(dir, environmentNames())
	})
	return loadErr
}

// LoadedPaths reports the dotenv files applied, highest precedence first.
func LoadedPaths() []string {
	return append([]string(nil), loadedPaths...)
}

func environmentNames() []string {
	namesMu.Lock()
	defer namesMu.Unlock()
	if len(envNames) > 0 {
		return envNames
	}
	return splitNames(os.Getenv(EnvNames))
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func loadDotEnvFiles(start string, names []string) ([]string, error) {
	files, err := findDotEnvFiles(start, names)
	if err != nil {
		log.Debug().Err(err).Msg("env: search dotenv files failed")
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(files...); err != nil {
		log.Warn().Err(err).Strs("dotenv", files).Msg("env: load dotenv files failed")
		return nil, errors.Wrap(err, "env: load dotenv files")
	}
	log.Debug().Strs("dotenv", files).Msg("env: loaded dotenv files")
	return files, nil
}

// findDotEnvFiles returns the dotenv files of the first directory, from
// start up to the filesystem root, that has any.
func findDotEnvFiles(start string, names []string) ([]string, error) {
	dir := start
	for {
		files, err := dotEnvFiles(dir, names)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return files, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// dotEnvFiles lists the existing dotenv files of dir in precedence order.
// Later names given to --env override earlier ones, as with fastlane.
func dotEnvFiles(dir string, names []string) ([]string, error) {
	bases := make([]string, 0, len(names)+2)
	for i := len(names) - 1; i >= 0; i-- {
		bases = append(bases, ".env."+names[i])
	}
	bases = append(bases, ".env", ".env.default")

	var files []string
	for _, root := range []string{filepath.Join(dir, "fastlane"), dir} {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		for _, base := range bases {
			candidate := filepath.Join(root, base)
			info, err := os.Stat(candidate)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, errors.Wrapf(err, "env: stat %s", candidate)
			}
			if !info.IsDir() {
				files = append(files, candidate)
			}
		}
	}
	return files, nil
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
