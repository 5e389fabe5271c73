package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

const (
	RXNCredentialsFile = "rxn_api.cred"
	DSCredentialsFile  = "deepsearch_api.cred"
)

// Flag is a boolean that also accepts the quoted "true" / "False" spellings
// found in older credential files.
type Flag bool

// UnmarshalJSON never fails; anything but a true spelling is false.
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.ToLower(strings.TrimSpace(string(b))), `"`)
	*f = s == "true" || s == "1" || s == "yes"
	return nil
}

// Auth holds the login part of a credential file.
type Auth struct {
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Credentials is the layout of both credential files.
type Credentials struct {
	Host      string `json:"host"`
	Auth      Auth   `json:"auth"`
	VerifySSL Flag   `json:"verify_ssl"`
}

// HostOr returns the host, or def when it is blank or the "None"
// placeholder.
func (c *Credentials) HostOr(def string) string {
	h := strings.TrimSpace(c.Host)
	if h == "" || strings.EqualFold(h, "none") {
		return def
	}
	return h
}

func blank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "none")
}

// LoadCredentials reads path. A missing file is reported as NotFound.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "credentials file not found").WithDetail(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read credentials").WithDetail(path)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed credentials file").WithDetail(path)
	}
	return &c, nil
}

// WriteCredentials stores c readable by the owner only.
func WriteCredentials(path string, c *Credentials) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode credentials")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create credentials directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write credentials").WithDetail(path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write credentials").WithDetail(path)
	}
	return nil
}

// removeCredentials deletes path and reports whether a file was removed.
func removeCredentials(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to remove credentials").WithDetail(path)
}

// Prompter asks the user for a missing credential field.
type Prompter interface {
	Ask(label string, secret bool) (string, error)
}

// promptCredentials fills the fields named in fields ("host", "username",
// "api_key") and writes the result to path.
func promptCredentials(p Prompter, path string, fields ...string) (*Credentials, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "no credentials on file").WithDetail(path)
	}
	c := &Credentials{}
	for _, f := range fields {
		var (
			v   string
			err error
		)
		switch f {
		case "host":
			v, err = p.Ask("Host (leave blank for the default)", false)
			c.Host = strings.TrimSpace(v)
		case "username":
			v, err = p.Ask("Username", false)
			c.Auth.Username = strings.TrimSpace(v)
		case "api_key":
			v, err = p.Ask("API key", true)
			c.Auth.APIKey = strings.TrimSpace(v)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "credential prompt aborted")
		}
	}
	if err := WriteCredentials(path, c); err != nil {
		return nil, err
	}
	return c, nil
}
