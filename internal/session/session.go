// Package session holds the state a user accumulates while working in one
// workspace: logged-in toolkits, the RXN project bound to the workspace and
// named result tables.
package session

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

const (
	projectSyncAttempts = 5
	projectSyncWait     = 3 * time.Second
)

// RXNToolkit is a logged-in RXN account bound to the workspace project.
type RXNToolkit struct {
	Client    *client.RXNClient
	APIKey    string
	Email     string
	Project   string
	ProjectID string
}

// DeepSearchToolkit is a Deep Search login valid until Expiry.
type DeepSearchToolkit struct {
	Client   *client.DeepSearchClient
	Token    string
	Username string
	Expiry   time.Time
}

// Valid reports whether the toolkit holds a client whose token has not
// expired at now.
func (t *DeepSearchToolkit) Valid(now time.Time) bool {
	return t != nil && t.Client != nil && now.Before(t.Expiry)
}

// Session is the state shared by the commands of one workspace: the
// logged-in toolkits, the project registry and the named tables produced
// by earlier commands. Table access is safe for concurrent use.
type Session struct {
	Workspace    string
	WorkspaceDir string
	HomeDir      string
	Display      config.DisplayConfig

	RXN        *RXNToolkit
	DeepSearch *DeepSearchToolkit

	rxnCfg   config.RXNConfig
	dsCfg    config.DeepSearchConfig
	projects *ProjectRegistry
	prompter Prompter
	sleeper  prediction.Sleeper
	logger   logging.Logger
	now      func() time.Time

	mu        sync.RWMutex
	variables map[string]command.Table
}

// Option configures a Session.
type Option func(*Session)

// WithPrompter lets logins ask for credentials that are not on file.
func WithPrompter(p Prompter) Option {
	return func(s *Session) { s.prompter = p }
}

// WithSleeper replaces the sleeper used between project sync attempts.
func WithSleeper(sl prediction.Sleeper) Option {
	return func(s *Session) { s.sleeper = sl }
}

// New creates a Session for the workspace in cfg. Nothing is read from disk
// and no login is attempted until a command needs it.
func New(cfg *config.Config, log logging.Logger, opts ...Option) *Session {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Session{
		Workspace:    cfg.Workspace.Name,
		WorkspaceDir: cfg.Workspace.RootDir,
		HomeDir:      cfg.Workspace.HomeDir,
		Display:      cfg.Display,
		rxnCfg:       cfg.RXN,
		dsCfg:        cfg.DeepSearch,
		projects:     NewProjectRegistry(cfg.Workspace.HomeDir),
		sleeper:      prediction.RealSleeper(),
		logger:       log.Named("session").With(logging.String("workspace", cfg.Workspace.Name)),
		now:          time.Now,
		variables:    make(map[string]command.Table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tableKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Table returns the session table stored under name, ignoring case.
func (s *Session) Table(name string) (command.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.variables[tableKey(name)]
	return t, ok
}

// SetTable stores t under name, replacing any table of the same name.
func (s *Session) SetTable(name string, t command.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[tableKey(name)] = t
}

// TableNames lists the stored table names in sorted order.
func (s *Session) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.variables))
	for n := range s.variables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sources reads command inputs relative to the workspace and from the
// session tables.
func (s *Session) Sources() *prediction.SourceReader {
	return prediction.NewSourceReader(s.WorkspaceDir, s)
}

// Projects returns the RXN project registry under the home directory.
func (s *Session) Projects() *ProjectRegistry { return s.projects }

// RXNCredentialsPath and DSCredentialsPath locate the credential files.
func (s *Session) RXNCredentialsPath() string { return filepath.Join(s.HomeDir, RXNCredentialsFile) }
func (s *Session) DSCredentialsPath() string  { return filepath.Join(s.HomeDir, DSCredentialsFile) }

func (s *Session) credentials(path string, fields ...string) (*Credentials, error) {
	c, err := LoadCredentials(path)
	if errors.IsNotFound(err) {
		return promptCredentials(s.prompter, path, fields...)
	}
	return c, err
}

// LoginRXN logs in with the stored RXN credentials and binds the session
// to the project named after the workspace. An existing login for the same
// workspace is reused.
func (s *Session) LoginRXN(ctx context.Context) (*RXNToolkit, error) {
	if s.RXN != nil && s.RXN.Project == strings.ToUpper(s.Workspace) {
		return s.RXN, nil
	}

	creds, err := s.credentials(s.RXNCredentialsPath(), "host", "api_key")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNNotLoggedIn, "no RXN credentials")
	}
	if blank(creds.Auth.APIKey) {
		return nil, errors.New(errors.ErrCodeRXNCredentials, "RXN API key is missing").WithDetail(s.RXNCredentialsPath())
	}

	cl, err := client.NewRXNClient(creds.HostOr(s.rxnCfg.Host), creds.Auth.APIKey,
		client.WithTimeout(s.rxnCfg.RequestTimeout),
		client.WithInsecureSkipVerify(bool(creds.VerifySSL) || s.rxnCfg.VerifySSL))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNCredentials, "invalid RXN credentials")
	}
	user, err := cl.CurrentUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNCredentials, "failed to log in to RXN")
	}

	tk := &RXNToolkit{Client: cl, APIKey: creds.Auth.APIKey, Email: user.Email}
	if err := s.syncProject(ctx, tk); err != nil {
		return nil, err
	}
	s.RXN = tk
	s.logger.Info("logged in to RXN",
		logging.String("email", user.Email),
		logging.String("project", tk.Project))
	return tk, nil
}

// syncProject selects the workspace project, creating and registering it
// when the registry does not know it yet.
func (s *Session) syncProject(ctx context.Context, tk *RXNToolkit) error {
	name := strings.ToUpper(s.Workspace)
	if id, ok := s.projects.Lookup(name); ok {
		tk.Project, tk.ProjectID = name, id
		tk.Client.SetProject(id)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= projectSyncAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleeper.Sleep(ctx, projectSyncWait); err != nil {
				return errors.Wrap(err, errors.ErrCodeRXNProjectSync, "project sync cancelled")
			}
		}
		p, err := tk.Client.CreateProject(ctx, name)
		if err != nil {
			lastErr = err
			s.logger.Warn("failed to create RXN project",
				logging.Int("attempt", attempt),
				logging.Err(err))
			continue
		}
		if err := s.projects.Append(name, p.ID); err != nil {
			return err
		}
		tk.Project, tk.ProjectID = name, p.ID
		tk.Client.SetProject(p.ID)
		s.logger.Info("created RXN project", logging.String("project", name), logging.String("id", p.ID))
		return nil
	}
	return errors.Wrap(lastErr, errors.ErrCodeRXNProjectSync, "failed to set up an RXN project for this workspace")
}

// ResetRXNLogin forgets the RXN login and deletes its credentials file.
func (s *Session) ResetRXNLogin() (bool, error) {
	s.RXN = nil
	return removeCredentials(s.RXNCredentialsPath())
}

// LoginDeepSearch exchanges the stored Deep Search credentials for a
// bearer token. A login whose token has not expired is reused.
func (s *Session) LoginDeepSearch(ctx context.Context) (*DeepSearchToolkit, error) {
	if s.DeepSearch.Valid(s.now()) {
		return s.DeepSearch, nil
	}

	creds, err := s.credentials(s.DSCredentialsPath(), "host", "username", "api_key")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDSNotLoggedIn, "no Deep Search credentials")
	}
	switch {
	case blank(creds.Auth.Username):
		return nil, errors.New(errors.ErrCodeDSCredentials, "invalid username")
	case blank(creds.Auth.APIKey):
		return nil, errors.New(errors.ErrCodeDSCredentials, "invalid API key")
	}

	host := creds.HostOr(s.dsCfg.Host)
	opts := []client.Option{
		client.WithTimeout(s.dsCfg.RequestTimeout),
		client.WithInsecureSkipVerify(bool(creds.VerifySSL) || s.dsCfg.VerifySSL),
	}
	token, err := client.FetchDeepSearchToken(ctx, host, creds.Auth.Username, creds.Auth.APIKey, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDSCredentials, "failed to log in to Deep Search").
			WithDetail(creds.Auth.Username)
	}
	expiry, err := TokenExpiry(token)
	if err != nil {
		return nil, err
	}
	cl, err := client.NewDeepSearchClient(host, token, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDSCredentials, "invalid Deep Search host")
	}

	s.DeepSearch = &DeepSearchToolkit{Client: cl, Token: token, Username: creds.Auth.Username, Expiry: expiry}
	s.logger.Info("logged in to Deep Search",
		logging.String("username", creds.Auth.Username),
		logging.String("expires", expiry.Format(time.RFC1123)))
	return s.DeepSearch, nil
}

// ResetDeepSearchLogin drops the current Deep Search login and removes the
// credential file. It reports whether a file was removed.
func (s *Session) ResetDeepSearchLogin() (bool, error) {
	s.DeepSearch = nil
	return removeCredentials(s.DSCredentialsPath())
}
