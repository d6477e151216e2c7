package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const lastNameKey = "last_username"

// NameFile persists the last used display name in a small yaml file.
type NameFile struct {
	path string
}

// NewNameFile uses path, or ~/.config/roomview/client.yaml when empty.
func NewNameFile(path string) *NameFile {
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(dir, "roomview", "client.yaml")
		} else {
			path = "roomview-client.yaml"
		}
	}
	return &NameFile{path: path}
}

func (n *NameFile) Path() string { return n.path }

func (n *NameFile) LastName() string {
	v := viper.New()
	v.SetConfigFile(n.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("module", "config.names").Str("path", n.path).Msg("read name file")
		}
		return ""
	}
	return v.GetString(lastNameKey)
}

func (n *NameFile) SaveName(name string) error {
	if err := os.MkdirAll(filepath.Dir(n.path), 0o755); err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set(lastNameKey, name)
	return v.WriteConfigAs(n.path)
}
