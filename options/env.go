package options

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/robbyt/go-replkit/platform/script/loader"
)

// Environment variables read by FromEnv.
const (
	EnvGoBinary    = "REPLKIT_GO"
	EnvWorkDir     = "REPLKIT_WORK_DIR"
	EnvTimeout     = "REPLKIT_TIMEOUT"
	EnvClasspath   = "REPLKIT_CLASSPATH"
	EnvS3Endpoint  = "REPLKIT_S3_ENDPOINT"
	EnvS3AccessKey = "REPLKIT_S3_ACCESS_KEY"
	EnvS3SecretKey = "REPLKIT_S3_SECRET_KEY"
	EnvS3Region    = "REPLKIT_S3_REGION"
	EnvS3UseSSL    = "REPLKIT_S3_USE_SSL"
)

// FromEnv loads the given dotenv files (".env" when none are given, ignored if missing)
// and then applies the REPLKIT_* variables. Variables already set in the process win
// over the files. REPLKIT_CLASSPATH is a comma separated list.
func FromEnv(files ...string) Option {
	return func(c *Config) error {
		if len(files) == 0 {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %w", ErrEnvLoad, err)
			}
		} else if err := godotenv.Load(files...); err != nil {
			return fmt.Errorf("%w: %w", ErrEnvLoad, err)
		}
		return applyEnv(c)
	}
}

func applyEnv(c *Config) error {
	if v := getenv(EnvGoBinary); v != "" {
		c.goBinary = v
	}
	if v := getenv(EnvWorkDir); v != "" {
		c.workDir = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEnvValue, EnvTimeout, err)
		}
		c.timeout = d
	}
	if v := getenv(EnvClasspath); v != "" {
		for _, entry := range strings.Split(v, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				c.classpath = append(c.classpath, entry)
			}
		}
	}

	s3 := loader.S3Options{
		Endpoint:  getenv(EnvS3Endpoint),
		AccessKey: getenv(EnvS3AccessKey),
		SecretKey: getenv(EnvS3SecretKey),
		Region:    getenv(EnvS3Region),
		UseSSL:    true,
	}
	if raw := getenv(EnvS3UseSSL); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrEnvValue, EnvS3UseSSL, err)
		}
		s3.UseSSL = useSSL
	}
	if s3.Endpoint != "" || s3.AccessKey != "" || s3.SecretKey != "" {
		c.s3Options = &s3
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
