package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const credentialsFile = "credentials.yaml"

type credentials struct {
	Server   string `yaml:"server,omitempty"`
	Username string `yaml:"username,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

func credentialsPath() (string, error) {
	if p := viper.GetString("credentials"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locating config directory")
	}
	return filepath.Join(dir, "kalamu", credentialsFile), nil
}

// loadCredentials returns empty credentials when nobody has logged in yet.
func loadCredentials() (*credentials, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return new(credentials), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading credentials")
	}
	creds := new(credentials)
	if err := yaml.Unmarshal(b, creds); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return creds, nil
}

// save writes the credentials readable by the current user only.
func (c *credentials) save() error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding credentials")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o600), "writing credentials")
}
